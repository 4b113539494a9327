package pdf

import (
	"context"
	"errors"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var ErrEmptyDocument = errors.New("empty_document")

// DocumentData is the already formatted content of one document. Amounts are
// strings so the renderer never does arithmetic.
type DocumentData struct {
	Title     string
	Number    string
	IssueDate string
	DueDate   string

	OrgName    string
	OrgAddress string
	OrgEmail   string

	BillToName    string
	BillToAddress string
	BillToEmail   string

	PaymentTerms string
	Notes        string

	Items []DocumentItem

	TotalNet   string
	TotalTax   string
	TotalGross string
}

type DocumentItem struct {
	Position    string
	Description string
	Quantity    string
	UnitPrice   string
	TaxRate     string
	Amount      string
	// Muted marks optional or alternative lines that are not part of the total.
	Muted bool
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) RenderDocument(ctx context.Context, doc DocumentData) ([]byte, error) {
	if doc.Number == "" {
		return nil, ErrEmptyDocument
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, doc.Title, props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(16,
		col.New(6).Add(
			text.New("Number: "+doc.Number, props.Text{Top: 0}),
			text.New("Date of issue: "+doc.IssueDate, props.Text{Top: 4}),
			text.New("Date due: "+doc.DueDate, props.Text{Top: 8}),
		),
		col.New(6),
	)

	m.AddRow(32,
		col.New(6).Add(
			text.New(doc.OrgName, props.Text{Style: fontstyle.Bold}),
			text.New(doc.OrgAddress, props.Text{Top: 5}),
			text.New(doc.OrgEmail, props.Text{Top: 20}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(doc.BillToName, props.Text{Top: 5}),
			text.New(doc.BillToAddress, props.Text{Top: 9}),
			text.New(doc.BillToEmail, props.Text{Top: 25}),
		),
	)

	header := props.Text{Style: fontstyle.Bold, Size: 9}
	headerRight := props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}
	m.AddRow(8,
		text.NewCol(1, "Pos", header),
		text.NewCol(5, "Description", header),
		text.NewCol(1, "Qty", headerRight),
		text.NewCol(2, "Unit price", headerRight),
		text.NewCol(1, "Tax", headerRight),
		text.NewCol(2, "Amount", headerRight),
	)
	m.AddRow(2, line.NewCol(12))

	for _, item := range doc.Items {
		cell := props.Text{Size: 9}
		right := props.Text{Size: 9, Align: align.Right}
		if item.Muted {
			cell.Style = fontstyle.Italic
			right.Style = fontstyle.Italic
		}
		m.AddRow(10,
			text.NewCol(1, item.Position, cell),
			text.NewCol(5, item.Description, cell),
			text.NewCol(1, item.Quantity, right),
			text.NewCol(2, item.UnitPrice, right),
			text.NewCol(1, item.TaxRate, right),
			text.NewCol(2, item.Amount, right),
		)
	}

	m.AddRow(2, line.NewCol(12))
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Net", props.Text{Size: 9}),
		text.NewCol(2, doc.TotalNet, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Tax", props.Text{Size: 9}),
		text.NewCol(2, doc.TotalTax, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, doc.TotalGross, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	if doc.PaymentTerms != "" {
		m.AddRow(12, text.NewCol(12, doc.PaymentTerms, props.Text{Size: 9, Top: 4}))
	}
	if doc.Notes != "" {
		m.AddRow(12, text.NewCol(12, doc.Notes, props.Text{Size: 9, Top: 2}))
	}

	out, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return out.GetBytes(), nil
}
