package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dukerupert/foodalloc/internal/constraint"
	"github.com/dukerupert/foodalloc/internal/dashboard"
	"github.com/dukerupert/foodalloc/internal/model"
	"github.com/dukerupert/foodalloc/internal/realtime"
	"github.com/dukerupert/foodalloc/internal/wizard"
)

const timeLayout = "2006-01-02 15:04"

func (a *app) creatable(ctx context.Context) error {
	cr, err := a.api.AllocationCreatable(ctx)
	if err != nil {
		a.notes.Failure(ctx, err)
		return err
	}
	if cr.IsAllowed {
		fmt.Fprintln(a.out, "A new allocation may be created.")
		return nil
	}
	if cur := cr.CurrentAllocation; cur != nil {
		fmt.Fprintf(a.out, "Allocation %s is %s; wait for it to finish.\n", cur.Number, cur.Status)
		return nil
	}
	fmt.Fprintln(a.out, "A new allocation may not be created yet.")
	return nil
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	status := fs.String("status", "", "filter by status")
	number := fs.String("no", "", "filter by allocation number")
	page := fs.Int("page", 1, "page number")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	v := dashboard.NewListView(a.api, a.notes, a.logger)
	q := model.PageQuery{Page: *page, Filters: map[string]string{"status": *status, "allocation_no": *number}}
	if err := v.Search(ctx, q); err != nil {
		return err
	}
	a.printList(v)
	return nil
}

func (a *app) printList(v *dashboard.ListView) {
	p := v.Page()
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNUMBER\tSTATUS\tSTARTED\tENDED\tCREATED BY")
	for _, al := range p.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", al.ID, al.Number, al.Status, fmtTime(al.StartTime), fmtTime(al.EndTime), al.CreatedBy)
	}
	tw.Flush()
	fmt.Fprintf(a.out, "page %d, %d of %d allocations\n", p.Page, len(p.Items), p.Total)
	if cr := v.Creatable(); !cr.IsAllowed && cr.CurrentAllocation != nil {
		fmt.Fprintf(a.out, "creation blocked by %s (%s)\n", cr.CurrentAllocation.Number, cr.CurrentAllocation.Status)
	}
}

func (a *app) show(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return errUsage
	}
	v := dashboard.NewDetailView(id, a.api, a.notes, a.cfg.Dashboard.CacheTTL, a.logger)
	if err := v.Refresh(ctx); err != nil {
		return err
	}
	a.printDetail(v)
	return nil
}

func (a *app) printDetail(v *dashboard.DetailView) {
	al := v.Allocation()
	fmt.Fprintf(a.out, "%s  %s  days=%d diversification=%d\n", al.Number, al.Status, al.AllocationDays, al.Diversification)
	fmt.Fprintf(a.out, "started %s, ended %s\n", fmtTime(al.StartTime), fmtTime(al.EndTime))
	if al.Log != "" {
		fmt.Fprintf(a.out, "log:\n  %s\n", strings.ReplaceAll(al.Log, "\n", "\n  "))
	}

	rows, total := v.Families()
	fmt.Fprintf(a.out, "\nfamilies (%d)\n", total)
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFAMILY\tSTATUS\tSCORE\tTIER\tACTIONS")
	for _, r := range rows {
		actions := "-"
		if r.CanAct {
			actions = "accept/reject"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.1f%%\t%s\t%s\n", r.ID, r.FamilyName, r.Status, r.Score, r.Tier, actions)
	}
	tw.Flush()

	inv := v.Inventories()
	fmt.Fprintf(a.out, "\ninventories (%d)\n", inv.Total)
	tw = tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tQUANTITY\tMAX PER FAMILY")
	for _, i := range inv.Items {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", i.ProductName, i.Quantity, i.MaxQuantityPerFamily)
	}
	tw.Flush()
}

// inventoryFlag collects repeated -inventory ID:QTY[:PER_FAMILY] values.
type inventoryFlag []inventoryArg

type inventoryArg struct {
	id, qty, perFamily int
}

func (f *inventoryFlag) String() string { return fmt.Sprint(*f) }

func (f *inventoryFlag) Set(s string) error {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return fmt.Errorf("want ID:QTY[:PER_FAMILY], got %q", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("inventory %q: %w", s, err)
		}
		nums[i] = n
	}
	*f = append(*f, inventoryArg{id: nums[0], qty: nums[1], perFamily: nums[2]})
	return nil
}

// create drives the allocation wizard step by step, applying the same
// corrections an operator would see on leaving each field.
func (a *app) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	familyList := fs.String("families", "", "comma separated family ids")
	days := fs.Int("days", 0, "allocation days")
	diversification := fs.Int("diversification", 0, "diversification")
	var invs inventoryFlag
	fs.Var(&invs, "inventory", "ID:QTY[:PER_FAMILY], repeatable")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	tpl := wizard.DefaultTemplate()
	tpl.PageSize = a.cfg.Wizard.PageSize
	w := wizard.New(tpl, a.api, a.notes, a.logger.With("component", "wizard"))
	w.Open()

	// Families
	for _, s := range strings.Split(*familyList, ",") {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("family id %q: %w", s, err)
		}
		w.ToggleFamily(id)
	}
	if err := a.proceed(w); err != nil {
		return err
	}

	// Inventories
	available, err := a.eligibleInventories(ctx, w)
	if err != nil {
		return err
	}
	for _, arg := range invs {
		inv, ok := available[int64(arg.id)]
		if !ok {
			err := fmt.Errorf("inventory %d is not eligible", arg.id)
			a.notes.Failure(ctx, err)
			return err
		}
		w.SelectInventory(inv)
		if ok, _ := w.SetQuantity(inv.ID, arg.qty); !ok {
			q, _ := w.BlurQuantity(inv.ID)
			fmt.Fprintf(a.out, "%s: quantity corrected to %d\n", inv.ProductName, q)
		}
		if arg.perFamily > 0 {
			if ok, _ := w.SetMaxPerFamily(inv.ID, arg.perFamily); !ok {
				m, _ := w.BlurMaxPerFamily(inv.ID)
				fmt.Fprintf(a.out, "%s: max per family corrected to %d\n", inv.ProductName, m)
			}
		} else {
			// Quantity changes can leave the default per-family cap out of range.
			w.BlurMaxPerFamily(inv.ID)
		}
	}
	if err := a.proceed(w); err != nil {
		return err
	}

	// Constraints
	if *days != 0 && !w.SetAllocationDays(*days) {
		fmt.Fprintf(a.out, "allocation days corrected to %d\n", w.BlurAllocationDays())
	}
	if *diversification != 0 && !w.SetDiversification(*diversification) {
		fmt.Fprintf(a.out, "diversification corrected to %d\n", w.BlurDiversification())
	}

	_, err = w.Submit(ctx)
	return err
}

func (a *app) proceed(w *wizard.Controller) error {
	err := w.Proceed()
	if errors.Is(err, wizard.ErrStepInvalid) {
		for _, v := range w.Violations() {
			if stepOf(v) == w.Step() {
				fmt.Fprintf(a.out, "%s\n", v)
			}
		}
		return fmt.Errorf("%s step: %w", w.Step(), err)
	}
	return err
}

func stepOf(v constraint.Violation) constraint.Step {
	switch {
	case v.Field == "family_ids":
		return constraint.StepFamilies
	case strings.HasPrefix(v.Field, "inventories"):
		return constraint.StepInventories
	default:
		return constraint.StepConstraints
	}
}

// eligibleInventories pages through every eligible inventory row.
func (a *app) eligibleInventories(ctx context.Context, w *wizard.Controller) (map[int64]model.Inventory, error) {
	out := map[int64]model.Inventory{}
	for page := 1; ; page++ {
		p, err := w.LoadInventories(ctx, model.PageQuery{Page: page, PerPage: model.MaxPerPage})
		if err != nil {
			return nil, err
		}
		for _, inv := range p.Items {
			out[inv.ID] = inv
		}
		if len(p.Items) < model.MaxPerPage || page*model.MaxPerPage >= p.Total {
			return out, nil
		}
	}
}

func (a *app) act(ctx context.Context, args []string, accept bool) error {
	if len(args) != 2 {
		return errUsage
	}
	allocationID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return errUsage
	}
	familyID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return errUsage
	}

	v := dashboard.NewDetailView(allocationID, a.api, a.notes, a.cfg.Dashboard.CacheTTL, a.logger)
	if err := v.Refresh(ctx); err != nil {
		return err
	}
	// The family must be on a visible page; widen the page for the lookup.
	if err := v.SearchFamilies(ctx, model.PageQuery{PerPage: model.MaxPerPage}); err != nil {
		return err
	}
	if accept {
		err = v.Accept(ctx, familyID)
	} else {
		err = v.Reject(ctx, familyID)
	}
	switch {
	case errors.Is(err, dashboard.ErrUnknownFamily), errors.Is(err, dashboard.ErrActionDisabled):
		a.notes.Error(ctx, fmt.Sprintf("Allocation family %d: %v", familyID, err))
		return err
	case err != nil:
		return err
	}
	if al := v.Allocation(); al.Status == model.AllocationCompleted {
		fmt.Fprintf(a.out, "allocation %s is now completed\n", al.Number)
	}
	return nil
}

// printer redraws a view after each refresh the watcher triggers.
type printer struct {
	view  dashboard.Refresher
	print func()
}

func (p printer) Refresh(ctx context.Context) error {
	if err := p.view.Refresh(ctx); err != nil {
		return err
	}
	p.print()
	return nil
}

func (a *app) watch(ctx context.Context, args []string) error {
	bus := realtime.NewBus(a.logger.With("component", "bus"))
	ch := realtime.NewChannel(realtime.Config{
		URL:            a.cfg.Realtime.URL,
		ReconnectDelay: a.cfg.Realtime.ReconnectDelay,
	}, a.tokens, bus, a.notes.Realtime(), a.logger.With("component", "realtime"))

	var views []dashboard.Refresher
	switch len(args) {
	case 0:
		v := dashboard.NewListView(a.api, a.notes, a.logger)
		views = append(views, printer{view: v, print: func() { a.printList(v) }})
	case 1:
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return errUsage
		}
		v := dashboard.NewDetailView(id, a.api, a.notes, a.cfg.Dashboard.CacheTTL, a.logger)
		views = append(views, printer{view: v, print: func() { a.printDetail(v) }})
	default:
		return errUsage
	}

	for _, v := range views {
		if err := v.Refresh(ctx); err != nil {
			return err
		}
	}

	sub := bus.Subscribe()
	defer sub.Close()
	go ch.Run(ctx)
	return dashboard.Watch(ctx, sub, a.logger, views...)
}

func (a *app) notifications(args []string) error {
	fs := flag.NewFlagSet("notifications", flag.ContinueOnError)
	n := fs.Int("n", 20, "number of notifications")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	notes, err := a.nstore.ListRecent(*n)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, note := range notes {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", note.CreatedAt.Local().Format(timeLayout), note.Level, note.Message)
	}
	return tw.Flush()
}

func fmtTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(timeLayout)
}
