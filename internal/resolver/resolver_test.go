package resolver

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/gateway"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/portal"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/query"
)

const searchForm = `<html><body><form id="aspnetForm">
<input type="hidden" name="__VIEWSTATE" value="initial-state"/>
<input type="hidden" name="__EVENTVALIDATION" value="ev"/>
<input type="hidden" name="__EVENTTARGET" value=""/>
<input type="submit" name="ctl00$MainContent$BtnBusqueda" value="Buscar CFDI"/>
<input type="text" name="ctl00$MainContent$BtnDescargar" value="x"/>
</form></body></html>`

const modeDelta = "1|#||4|10|updatePanel|ctl00_MainContent_UpnlBusqueda|<div/>|" +
	"0|hiddenField|__EVENTTARGET||13|hiddenField|__VIEWSTATE|updated-state|"

const resultsDelta = `1|#||4|500|updatePanel|ctl00_MainContent_UpnlResultados|` +
	`<table id="ctl00_MainContent_tblResult"><tr><th>Folio Fiscal</th><th>Total</th></tr>` +
	`<tr><td>uuid-1</td><td>10.00</td></tr><tr><td>uuid-2</td><td>20.00</td></tr></table>|`

func TestResolveRunsThreeSteps(t *testing.T) {
	t.Parallel()

	var requests []gateway.Request
	client := gateway.ClientFunc(func(_ context.Context, req gateway.Request) (gateway.Response, error) {
		requests = append(requests, req)
		body := searchForm
		if req.Method == http.MethodPost {
			body = modeDelta
			if req.Form["ctl00$MainContent$BtnBusqueda"] != "" {
				body = resultsDelta
			}
		}
		return gateway.Response{StatusCode: http.StatusOK, Body: []byte(body)}, nil
	})
	r := New(gateway.New(client, gateway.NewCookieJar(), nil), nil, nil)

	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	q, err := query.NewByFilters(portal.Received, start, start.Add(time.Hour))
	require.NoError(t, err)

	list, err := r.Resolve(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []string{"uuid-1", "uuid-2"}, list.Uuids())

	require.Len(t, requests, 3)
	assert.Equal(t, http.MethodGet, requests[0].Method)
	assert.Equal(t, portal.URLConsultaReceptor, requests[0].URL)

	mode := requests[1].Form
	assert.Equal(t, "initial-state", mode["__VIEWSTATE"])
	assert.Equal(t, "ev", mode["__EVENTVALIDATION"])
	assert.Equal(t, "ctl00$MainContent$RdoFechas", mode["__EVENTTARGET"])
	assert.NotContains(t, mode, "ctl00$MainContent$BtnDescargar")
	assert.NotContains(t, mode, "ctl00$MainContent$BtnBusqueda")
	assert.Equal(t, "Delta=true", requests[1].Headers.Get("X-MicrosoftAjax"))

	search := requests[2].Form
	assert.Equal(t, "updated-state", search["__VIEWSTATE"])
	assert.Equal(t, "ev", search["__EVENTVALIDATION"])
	assert.Equal(t, "", search["__EVENTTARGET"])
	assert.Equal(t, "Buscar CFDI", search["ctl00$MainContent$BtnBusqueda"])
	assert.Equal(t, "2024", search["ctl00$MainContent$CldFecha$DdlAnio"])
	assert.Equal(t, "01", search["ctl00$MainContent$CldFecha$DdlHoraFin"])
}

func TestResolveFailsOnAnyStep(t *testing.T) {
	t.Parallel()

	for failAt := 1; failAt <= 3; failAt++ {
		calls := 0
		client := gateway.ClientFunc(func(context.Context, gateway.Request) (gateway.Response, error) {
			calls++
			if calls == failAt {
				return gateway.Response{}, errors.New("connection reset")
			}
			return gateway.Response{StatusCode: http.StatusOK, Body: []byte(searchForm)}, nil
		})
		r := New(gateway.New(client, gateway.NewCookieJar(), nil), nil, nil)
		q, err := query.NewByUUID(portal.Issued, "uuid-1")
		require.NoError(t, err)

		list, err := r.Resolve(context.Background(), q)
		require.ErrorIs(t, err, gateway.ErrTransport, "step %d", failAt)
		assert.Zero(t, list.Len())
		assert.Equal(t, failAt, calls)
	}
}

func TestResolveEmptyResults(t *testing.T) {
	t.Parallel()

	client := gateway.ClientFunc(func(context.Context, gateway.Request) (gateway.Response, error) {
		return gateway.Response{StatusCode: http.StatusOK, Body: []byte(searchForm)}, nil
	})
	r := New(gateway.New(client, gateway.NewCookieJar(), nil), nil, nil)
	q, err := query.NewByUUID(portal.Issued, "uuid-1")
	require.NoError(t, err)

	list, err := r.Resolve(context.Background(), q)
	require.NoError(t, err)
	assert.Zero(t, list.Len())
}

func TestMergeOverridesInOrder(t *testing.T) {
	t.Parallel()

	a := map[string]string{"x": "1", "y": "1"}
	out := merge(a, map[string]string{"y": "2"}, nil, map[string]string{"z": "3"})
	assert.Equal(t, map[string]string{"x": "1", "y": "2", "z": "3"}, out)
	assert.Equal(t, "1", a["y"])
}
