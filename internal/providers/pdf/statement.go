package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

func (p *marotoProvider) GenerateTrustStatement(ctx context.Context, data StatementData) (io.Reader, error) {
	m := newDocument()

	m.AddRow(10,
		text.NewCol(12, "Trust Account Statement", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(25,
		col.New(6).Add(
			text.New(data.FirmName, props.Text{Style: fontstyle.Bold}),
			text.New(data.AccountName, props.Text{Top: 5}),
			text.New(data.LedgerName, props.Text{Top: 9}),
		),
		col.New(6).Add(
			text.New("Client: "+data.ClientName, props.Text{Top: 0}),
			text.New("Period: "+data.PeriodStart+" to "+data.PeriodEnd, props.Text{Top: 4}),
			text.New("Opening balance: "+data.Opening, props.Text{Top: 8}),
		),
	)

	m.AddRow(10,
		text.NewCol(2, "Date", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Type", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Balance", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, line := range data.Lines {
		m.AddRow(10,
			text.NewCol(2, line.Date, props.Text{Size: 9}),
			text.NewCol(2, line.Type, props.Text{Size: 9}),
			text.NewCol(4, line.Description, props.Text{Size: 9}),
			text.NewCol(2, line.Amount, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, line.Balance, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(12,
		col.New(8),
		text.NewCol(2, "Closing balance", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, data.Closing, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}
