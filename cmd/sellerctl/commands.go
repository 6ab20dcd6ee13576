package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/bulk"
)

var errUsage = errors.New("invalid arguments")

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func runBulkStatus(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet("bulk-status")
	status := fs.String("status", "", "target status")
	note := fs.String("note", "", "note for the timeline")
	tracking := fs.String("tracking", "", "tracking number for shipped")
	carrier := fs.String("carrier", "", "carrier for shipped")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ids := fs.Args()
	if *status == "" || len(ids) == 0 {
		return fmt.Errorf("%w: bulk-status needs -status and at least one id", errUsage)
	}

	action := bulk.StatusAction{Status: domain.OrderStatus(*status), Note: *note}
	if *tracking != "" || *carrier != "" {
		action.Shipments = make(map[string]domain.Shipment, len(ids))
		for _, id := range ids {
			action.Shipments[id] = domain.Shipment{TrackingNumber: *tracking, Carrier: *carrier}
		}
	}

	s, err := env.session(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	batch, err := s.BulkStatus(ctx, ids, action)
	if err != nil {
		return err
	}
	writeBatch(env.out, batch)
	return nil
}

func runShip(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet("ship")
	tracking := fs.String("tracking", "", "tracking number")
	carrier := fs.String("carrier", "", "carrier")
	eta := fs.String("eta", "", "estimated delivery, RFC3339")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: ship needs exactly one order id", errUsage)
	}

	var estimated *time.Time
	if *eta != "" {
		parsed, err := time.Parse(time.RFC3339, *eta)
		if err != nil {
			return fmt.Errorf("%w: -eta: %v", errUsage, err)
		}
		estimated = &parsed
	}

	s, err := env.session(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	batch, err := s.Ship(ctx, fs.Arg(0), *tracking, *carrier, estimated)
	if err != nil {
		return err
	}
	writeBatch(env.out, batch)
	return nil
}

func runDeliver(ctx context.Context, env *environment, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: deliver needs exactly one order id", errUsage)
	}
	s, err := env.session(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	batch, err := s.Deliver(ctx, args[0])
	if err != nil {
		return err
	}
	writeBatch(env.out, batch)
	return nil
}

func runMove(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet("move")
	column := fs.String("column", "", "target column (order status)")
	note := fs.String("note", "", "note for the timeline")
	tracking := fs.String("tracking", "", "tracking number for shipped")
	carrier := fs.String("carrier", "", "carrier for shipped")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *column == "" || fs.NArg() != 1 {
		return fmt.Errorf("%w: move needs -column and exactly one order id", errUsage)
	}

	opts := bulk.MoveOptions{Note: *note}
	if *tracking != "" || *carrier != "" {
		opts.Shipment = &domain.Shipment{TrackingNumber: *tracking, Carrier: *carrier}
	}

	s, err := env.session(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	batch, err := s.Move(ctx, fs.Arg(0), domain.OrderStatus(*column), opts)
	if err != nil {
		return err
	}
	writeBatch(env.out, batch)
	writeBoard(env.out, s.Board().Columns())
	return nil
}

func runMembership(kind domain.MembershipKind) func(context.Context, *environment, []string) error {
	return func(ctx context.Context, env *environment, args []string) error {
		if env.cfg.Session.CustomerID == "" {
			return fmt.Errorf("%w: %s needs -customer or customer_id", errUsage, kind)
		}
		if len(args) == 0 {
			return fmt.Errorf("%w: %s needs a subcommand", errUsage, kind)
		}

		op, ids := args[0], args[1:]
		var direction bulk.Direction
		switch op {
		case "list":
		case "add":
			direction = bulk.DirectionAdd
		case "remove":
			direction = bulk.DirectionRemove
		case "toggle":
			direction = bulk.DirectionToggle
		default:
			return fmt.Errorf("%w: unknown %s subcommand %q", errUsage, kind, op)
		}
		if op != "list" && len(ids) == 0 {
			return fmt.Errorf("%w: %s %s needs at least one product id", errUsage, kind, op)
		}

		s, err := env.session(ctx, false)
		if err != nil {
			return err
		}
		defer s.Close()

		set, _ := s.Set(kind)
		if op != "list" {
			batch, err := s.Membership(ctx, ids, bulk.MembershipAction{Kind: kind, Direction: direction})
			if err != nil {
				return err
			}
			writeBatch(env.out, batch)
		}
		writeMembers(env.out, kind, set.Members())
		return nil
	}
}

func runWatch(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet("watch")
	kindFlag := fs.String("kind", string(domain.MembershipCart), "set to watch: cart|wishlist")
	interval := fs.Duration("interval", 2*time.Second, "how often to print changes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	kind := domain.MembershipKind(*kindFlag)
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", errUsage, *kindFlag)
	}
	if env.cfg.Session.CustomerID == "" {
		return fmt.Errorf("%w: watch needs -customer or customer_id", errUsage)
	}
	if *interval <= 0 {
		return fmt.Errorf("%w: -interval must be > 0", errUsage)
	}

	s, err := env.session(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	set, _ := s.Set(kind)
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	last, printed := "", false
	for {
		members := set.Members()
		if line := strings.Join(members, ","); !printed || line != last {
			writeMembers(env.out, kind, members)
			last, printed = line, true
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func writeBatch(w io.Writer, batch bulk.Batch) {
	_, _ = fmt.Fprintf(w, "batch %s: %s (%s)\n", batch.ID, batch.Summary(), batch.Status)
	for _, outcome := range batch.Outcomes {
		if outcome.OK {
			line := "ok"
			if outcome.Order != nil {
				line = string(outcome.Order.Status)
			}
			_, _ = fmt.Fprintf(w, "  %s\t%s\n", outcome.ID, line)
			continue
		}
		_, _ = fmt.Fprintf(w, "  %s\tfailed\t%s\t%v\n", outcome.ID, outcome.Reason(), outcome.Err)
	}
}

func writeMembers(w io.Writer, kind domain.MembershipKind, members []string) {
	if len(members) == 0 {
		_, _ = fmt.Fprintf(w, "%s: empty\n", kind)
		return
	}
	_, _ = fmt.Fprintf(w, "%s: %s\n", kind, strings.Join(members, ", "))
}

func writeBoard(w io.Writer, columns map[domain.OrderStatus][]string) {
	for _, status := range domain.OrderStatuses() {
		ids := columns[status]
		if len(ids) == 0 {
			continue
		}
		sort.Strings(ids)
		_, _ = fmt.Fprintf(w, "[%s] %s\n", status, strings.Join(ids, " "))
	}
}
