package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/metadata"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/portal"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/query"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/scraper"
)

// queryFlags are shared by every command that lists metadata.
type queryFlags struct {
	downloadType string
	since        string
	until        string
	uuids        []string
	exactTime    bool
	rfc          string
	complement   string
	state        string
}

func (f *queryFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.downloadType, "type", "issued", "issued|received (emitidos|recibidos)")
	flags.StringVar(&f.since, "since", "", `period start, "2006-01-02" or "2006-01-02 15:04:05"`)
	flags.StringVar(&f.until, "until", "", "period end, same formats as --since")
	flags.StringSliceVar(&f.uuids, "uuid", nil, "list these folios instead of a period")
	flags.BoolVar(&f.exactTime, "exact-time", false, "use the exact instants instead of whole days")
	flags.StringVar(&f.rfc, "rfc", "", "counterpart RFC filter")
	flags.StringVar(&f.complement, "complement", "", "complement catalog key (see catalogs)")
	flags.StringVar(&f.state, "state", "", "voucher state: todos|vigentes|cancelados")
	cmd.MarkFlagsMutuallyExclusive("uuid", "since")
}

func parseMoment(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{time.DateTime, time.DateOnly} {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid moment %q", value)
}

func (f *queryFlags) filters() (query.ByFilters, error) {
	downloadType, err := portal.ParseDownloadType(f.downloadType)
	if err != nil {
		return query.ByFilters{}, err
	}
	if f.since == "" || f.until == "" {
		return query.ByFilters{}, errors.New("--since and --until are required unless --uuid is given")
	}
	start, err := parseMoment(f.since)
	if err != nil {
		return query.ByFilters{}, err
	}
	end, err := parseMoment(f.until)
	if err != nil {
		return query.ByFilters{}, err
	}
	q, err := query.NewByFilters(downloadType, start, end)
	if err != nil {
		return query.ByFilters{}, err
	}
	if f.rfc != "" {
		q = q.WithRFC(query.NewRFC(f.rfc))
	}
	if f.complement != "" {
		complement, err := query.ComplementByKey(f.complement)
		if err != nil {
			return query.ByFilters{}, err
		}
		q = q.WithComplement(complement)
	}
	if f.state != "" {
		state, err := query.VoucherStateByKey(f.state)
		if err != nil {
			return query.ByFilters{}, err
		}
		q = q.WithVoucherState(state)
	}
	return q, nil
}

// lister is the part of the scraper the list and download commands use.
type lister interface {
	ListByUuids(ctx context.Context, uuids []string, downloadType portal.DownloadType) (metadata.List, error)
	ListByPeriod(ctx context.Context, q query.ByFilters) (metadata.List, error)
	ListByDateTime(ctx context.Context, q query.ByFilters) (metadata.List, error)
}

var _ lister = (*scraper.Scraper)(nil)

func (f *queryFlags) run(ctx context.Context, s lister) (portal.DownloadType, metadata.List, error) {
	if len(f.uuids) > 0 {
		downloadType, err := portal.ParseDownloadType(f.downloadType)
		if err != nil {
			return 0, metadata.List{}, err
		}
		list, err := s.ListByUuids(ctx, f.uuids, downloadType)
		return downloadType, list, err
	}
	q, err := f.filters()
	if err != nil {
		return 0, metadata.List{}, err
	}
	if f.exactTime {
		list, err := s.ListByDateTime(ctx, q)
		return q.DownloadType(), list, err
	}
	list, err := s.ListByPeriod(ctx, q)
	return q.DownloadType(), list, err
}
