// Package query models the searches the portal accepts: by date period with filters, or by a
// single folio fiscal. It also renders each search into the postback fields the portal expects.
package query

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/portal"
)

// Construction errors.
var (
	ErrEmptyUUID           = errors.New("uuid is required")
	ErrPeriodOutOfOrder    = errors.New("start date must not be after end date")
	ErrInvalidDownloadType = errors.New("invalid download type")
	ErrUnknownCatalogKey   = errors.New("unknown catalog key")
)

// Central filter values that select the search mode.
const (
	CentralByDates = "RdoFechas"
	CentralByUUID  = "RdoFolioFiscal"
)

// Query is a search the resolver can execute.
type Query interface {
	DownloadType() portal.DownloadType
	// CentralFilter is the radio button that selects the search mode.
	CentralFilter() string
	// SearchFields are the query-specific postback fields of the final search request.
	SearchFields() map[string]string
}

// ByFilters searches a period with optional RFC, complement and voucher state filters.
// Values are immutable; the With* methods return modified copies.
type ByFilters struct {
	downloadType portal.DownloadType
	start        time.Time
	end          time.Time
	rfc          RFC
	complement   Complement
	voucherState VoucherState
}

// NewByFilters validates and builds a period query.
func NewByFilters(downloadType portal.DownloadType, start, end time.Time) (ByFilters, error) {
	if !downloadType.Valid() {
		return ByFilters{}, fmt.Errorf("%w: %v", ErrInvalidDownloadType, downloadType)
	}
	if start.After(end) {
		return ByFilters{}, fmt.Errorf("%w: %s > %s", ErrPeriodOutOfOrder,
			start.Format(time.DateTime), end.Format(time.DateTime))
	}
	return ByFilters{downloadType: downloadType, start: start, end: end}, nil
}

// DownloadType implements Query.
func (q ByFilters) DownloadType() portal.DownloadType { return q.downloadType }

// Start returns the first instant of the period.
func (q ByFilters) Start() time.Time { return q.start }

// End returns the last instant of the period.
func (q ByFilters) End() time.Time { return q.end }

// RFC returns the RFC filter.
func (q ByFilters) RFC() RFC { return q.rfc }

// Complement returns the complement filter.
func (q ByFilters) Complement() Complement { return q.complement }

// VoucherState returns the voucher state filter.
func (q ByFilters) VoucherState() VoucherState { return q.voucherState }

// WithPeriod returns a copy with a new period, enforcing start <= end.
func (q ByFilters) WithPeriod(start, end time.Time) (ByFilters, error) {
	if start.After(end) {
		return ByFilters{}, fmt.Errorf("%w: %s > %s", ErrPeriodOutOfOrder,
			start.Format(time.DateTime), end.Format(time.DateTime))
	}
	q.start, q.end = start, end
	return q, nil
}

// WithDownloadType returns a copy targeting another search page.
func (q ByFilters) WithDownloadType(downloadType portal.DownloadType) (ByFilters, error) {
	if !downloadType.Valid() {
		return ByFilters{}, fmt.Errorf("%w: %v", ErrInvalidDownloadType, downloadType)
	}
	q.downloadType = downloadType
	return q, nil
}

// WithRFC returns a copy filtered by RFC.
func (q ByFilters) WithRFC(rfc RFC) ByFilters {
	q.rfc = rfc
	return q
}

// WithComplement returns a copy filtered by complement.
func (q ByFilters) WithComplement(complement Complement) ByFilters {
	q.complement = complement
	return q
}

// WithVoucherState returns a copy filtered by voucher state.
func (q ByFilters) WithVoucherState(state VoucherState) ByFilters {
	q.voucherState = state
	return q
}

// CentralFilter implements Query.
func (ByFilters) CentralFilter() string { return CentralByDates }

// SearchFields implements Query.
func (q ByFilters) SearchFields() map[string]string {
	fields := commonSearchFields(q)
	for _, opt := range []Option{q.rfc, q.complement, q.voucherState} {
		fields[opt.FieldName()] = opt.Value()
	}
	var dates map[string]string
	if q.downloadType == portal.Issued {
		dates = issuedDateFields(q.downloadType.CalendarField(), q.start, q.end)
	} else {
		dates = receivedDateFields(q.downloadType.CalendarField(), q.start, q.end)
	}
	for k, v := range dates {
		fields[k] = v
	}
	return fields
}

// ByUUID searches a single folio fiscal.
type ByUUID struct {
	downloadType portal.DownloadType
	uuid         UUID
}

// NewByUUID validates and builds a folio query.
func NewByUUID(downloadType portal.DownloadType, uuid string) (ByUUID, error) {
	if !downloadType.Valid() {
		return ByUUID{}, fmt.Errorf("%w: %v", ErrInvalidDownloadType, downloadType)
	}
	filter, err := NewUUID(uuid)
	if err != nil {
		return ByUUID{}, err
	}
	return ByUUID{downloadType: downloadType, uuid: filter}, nil
}

// DownloadType implements Query.
func (q ByUUID) DownloadType() portal.DownloadType { return q.downloadType }

// UUID returns the folio filter.
func (q ByUUID) UUID() UUID { return q.uuid }

// CentralFilter implements Query.
func (ByUUID) CentralFilter() string { return CentralByUUID }

// SearchFields implements Query.
func (q ByUUID) SearchFields() map[string]string {
	fields := commonSearchFields(q)
	fields[q.uuid.FieldName()] = q.uuid.Value()
	return fields
}
