package pdf

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type marotoProvider struct{}

func New() Provider {
	return &marotoProvider{}
}

func (p *marotoProvider) RenderInvoice(ctx context.Context, doc InvoiceDocument) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Monthly invoice", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(22,
		col.New(6).Add(
			text.New("Invoice number: "+doc.Number, props.Text{Top: 0}),
			text.New("Billing period: "+doc.Period, props.Text{Top: 4}),
			text.New("Date of issue: "+doc.IssueDate, props.Text{Top: 8}),
			text.New("Date due: "+doc.DueDate, props.Text{Top: 12}),
			text.New("Status: "+strings.ToUpper(doc.Status), props.Text{Top: 16}),
		),
		col.New(6).Add(
			text.New(doc.BuildingName, props.Text{Style: fontstyle.Bold}),
			text.New(doc.Address, props.Text{Top: 4}),
			text.New("Unit "+doc.UnitLabel, props.Text{Top: 8}),
			text.New(doc.ResidentName, props.Text{Top: 12}),
		),
	)

	m.AddRow(10,
		text.NewCol(6, "Expense category", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Allocation", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, item := range doc.Items {
		m.AddRow(8,
			text.NewCol(6, item.Category, props.Text{Size: 9}),
			text.NewCol(3, item.Method, props.Text{Size: 9}),
			text.NewCol(3, FormatCents(item.AmountCents), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(6),
		text.NewCol(3, "Subtotal", props.Text{Size: 9}),
		text.NewCol(3, FormatCents(doc.SubtotalCents), props.Text{Size: 9, Align: align.Right}),
	)
	if doc.LateFeeCents > 0 {
		m.AddRow(8,
			col.New(6),
			text.NewCol(3, "Late fee", props.Text{Size: 9}),
			text.NewCol(3, FormatCents(doc.LateFeeCents), props.Text{Size: 9, Align: align.Right}),
		)
	}
	if doc.CreditUsedCents > 0 {
		m.AddRow(8,
			col.New(6),
			text.NewCol(3, "Credit applied", props.Text{Size: 9}),
			text.NewCol(3, "-"+FormatCents(doc.CreditUsedCents), props.Text{Size: 9, Align: align.Right}),
		)
	}
	if doc.PaidCents > 0 {
		m.AddRow(8,
			col.New(6),
			text.NewCol(3, "Paid", props.Text{Size: 9}),
			text.NewCol(3, "-"+FormatCents(doc.PaidCents), props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(10,
		col.New(6),
		text.NewCol(3, "Amount due", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, FormatCents(doc.OutstandingCents), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	out, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(out.GetBytes()), nil
}
