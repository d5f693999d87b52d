package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"storefront/internal/cart"
	"storefront/internal/checkout"
	"storefront/internal/domain"
)

// Response is the JSON envelope for --format json.
type Response struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}

type output struct {
	w      io.Writer
	format string
	money  *checkout.Formatter
}

func newOutput(cmd *cobra.Command, opts *RootOptions) *output {
	return &output{w: cmd.OutOrStdout(), format: opts.Format, money: checkout.NewFormatter(opts.Currency)}
}

func (o *output) json(data any) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(Response{Status: "ok", Data: data})
}

func (o *output) cart(st cart.State) error {
	if o.format == "json" {
		return o.json(st)
	}
	if len(st.Items) == 0 {
		_, err := fmt.Fprintln(o.w, "Cart is empty.")
		return err
	}
	tw := tabwriter.NewWriter(o.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tPRODUCT\tTITLE\tQTY\tPRICE\tSUBTOTAL")
	for i, l := range st.Items {
		qty := fmt.Sprintf("%d/%d", l.Quantity, l.Stock)
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", i+1, l.ProductID, l.Title, qty, o.money.FormatPrice(l.Price), o.money.FormatPrice(l.Subtotal()))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(o.w, "\nItems: %d  Total: %s\n", st.TotalItemCount, o.money.FormatPrice(st.TotalPrice))
	return err
}

func (o *output) products(products []domain.Product) error {
	if o.format == "json" {
		return o.json(products)
	}
	tw := tabwriter.NewWriter(o.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tPRICE\tSTOCK")
	for _, p := range products {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", p.ID, p.Title, p.Category, o.money.FormatPrice(p.Price), p.Stock)
	}
	return tw.Flush()
}

func (o *output) order(order *checkout.Order) error {
	if o.format == "json" {
		return o.json(order)
	}
	_, err := fmt.Fprintf(o.w, "%s\n\n%s\n", order.Message, order.Link)
	return err
}
