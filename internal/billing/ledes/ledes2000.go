package ledes

import (
	"bytes"
	"encoding/xml"
)

// ledes2000 is a minimal LEDES 2000 document: one firm segment wrapping the
// exported invoices and their line items.
type ledes2000 struct {
	XMLName xml.Name   `xml:"ledes"`
	Version string     `xml:"version,attr"`
	Firm    firm2000   `xml:"firm"`
	Client  client2000 `xml:"client"`
	Invoice []inv2000  `xml:"invoice"`
}

type firm2000 struct {
	ID string `xml:"lf_id"`
}

type client2000 struct {
	ID string `xml:"cl_id"`
}

type inv2000 struct {
	Number    string     `xml:"inv_number"`
	Date      string     `xml:"inv_date"`
	Total     string     `xml:"inv_total"`
	Tax       string     `xml:"inv_tax"`
	Currency  string     `xml:"inv_currency"`
	Desc      string     `xml:"inv_desc,omitempty"`
	MatterID  string     `xml:"matter_id"`
	LineItems []line2000 `xml:"line_item"`
}

type line2000 struct {
	Number       int    `xml:"li_number"`
	Type         string `xml:"li_type"`
	Date         string `xml:"li_date"`
	Units        string `xml:"li_units"`
	UnitCost     string `xml:"li_unit_cost"`
	Total        string `xml:"li_total"`
	TaskCode     string `xml:"li_task_code,omitempty"`
	ActivityCode string `xml:"li_activity_code,omitempty"`
	ExpenseCode  string `xml:"li_expense_code,omitempty"`
	Timekeeper   string `xml:"li_timekeeper_id,omitempty"`
	Description  string `xml:"li_description"`
}

func export2000(req ExportRequest) ([]byte, error) {
	doc := ledes2000{
		Version: "2000",
		Firm:    firm2000{ID: req.LawFirmID},
		Client:  client2000{ID: req.ClientCode},
	}
	for _, inv := range req.Invoices {
		invoice := inv.Invoice
		out := inv2000{
			Number:   invoice.InvoiceNumber,
			Date:     invoice.IssueDate.Format(dateLayout),
			Total:    money2(invoice.Total),
			Tax:      money2(invoice.TaxAmount),
			Currency: invoice.Currency,
			Desc:     req.Description,
			MatterID: matterCode(req, invoice),
		}
		for i, item := range inv.Items {
			out.LineItems = append(out.LineItems, line2000{
				Number:       i + 1,
				Type:         adjType(item.ItemType),
				Date:         item.ServiceDate.Format(dateLayout),
				Units:        item.Quantity.StringFixed(2),
				UnitCost:     money2(item.Rate),
				Total:        money2(item.Amount),
				TaskCode:     item.TaskCode,
				ActivityCode: item.ActivityCode,
				ExpenseCode:  item.ExpenseCode,
				Timekeeper:   timekeeperID(item),
				Description:  item.Description,
			})
		}
		doc.Invoice = append(doc.Invoice, out)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	buf.WriteString("\n")
	return buf.Bytes(), nil
}
