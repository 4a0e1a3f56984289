package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
)

// PrintJSON writes v as indented JSON to the command's output.
func PrintJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintPermissions renders permissions sorted by id.
func PrintPermissions(cmd *cobra.Command, perms map[string]domain.Permission) error {
	if JSONOutput() {
		return PrintJSON(cmd, perms)
	}
	out := cmd.OutOrStdout()
	if len(perms) == 0 {
		fmt.Fprintln(out, "No permissions.")
		return nil
	}

	ids := make([]string, 0, len(perms))
	for id := range perms {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		p := perms[id]
		state := "inactive"
		if p.Active {
			state = "active"
		}
		line := fmt.Sprintf("%-20s %-8s product=%s", id, state, p.ProductID)
		if p.RenewState != "" {
			line += " renew=" + string(p.RenewState)
		}
		if p.ExpiresAt != nil {
			line += " expires=" + p.ExpiresAt.Local().Format(time.RFC3339)
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

// SortProducts orders products by id.
func SortProducts(products []domain.Product) {
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
}

// PrintProducts renders products sorted by id with their store price.
func PrintProducts(cmd *cobra.Command, products []domain.Product) {
	SortProducts(products)
	out := cmd.OutOrStdout()
	for _, p := range products {
		price := p.PrettyPrice()
		if price == "" {
			price = "-"
		}
		fmt.Fprintf(out, "%-16s %-14s %-10s %s\n", p.ID, p.Type, price, p.StoreID)
	}
}

// ErrorHint explains the tagged purchases errors a user can act on.
func ErrorHint(err error) string {
	switch {
	case errors.Is(err, domain.ErrPurchasePending):
		return "the store is still processing the payment; permissions update once it settles"
	case errors.Is(err, domain.ErrTransportFailed):
		return "the backend could not be reached; purchases are kept and replayed on the next launch"
	case errors.Is(err, domain.ErrProductNotFound):
		return "the product id is not configured on the backend"
	case errors.Is(err, domain.ErrCatalogUnavailable):
		return "the store catalog has no entry for this product"
	}
	return ""
}

// FailWithHint decorates err with an ErrorHint when one applies.
func FailWithHint(err error) error {
	if hint := ErrorHint(err); hint != "" {
		return fmt.Errorf("%w (%s)", err, hint)
	}
	return err
}

// SplitIDs splits comma separated args into ids.
func SplitIDs(args []string) []string {
	var ids []string
	for _, arg := range args {
		for _, id := range strings.Split(arg, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
