package query

import (
	"fmt"
	"strconv"
	"time"
)

const (
	scriptManagerField = "ctl00$ScriptManager1"
	updatePanel        = "ctl00$MainContent$UpnlBusqueda"
	mainContent        = "ctl00$MainContent$"
)

// ModeFields are posted to switch the search page into the query's mode before searching.
func ModeFields(q Query) map[string]string {
	central := q.CentralFilter()
	return map[string]string{
		"__ASYNCPOST":                     "true",
		"__EVENTTARGET":                   mainContent + central,
		"__EVENTARGUMENT":                 "",
		scriptManagerField:                updatePanel + "|" + mainContent + central,
		"ctl00$MainContent$FiltroCentral": central,
	}
}

func commonSearchFields(q Query) map[string]string {
	return map[string]string{
		"__ASYNCPOST":                     "true",
		"__EVENTTARGET":                   "",
		"__EVENTARGUMENT":                 "",
		"__LASTFOCUS":                     "",
		scriptManagerField:                updatePanel + "|ctl00$MainContent$BtnBusqueda",
		"ctl00$MainContent$BtnBusqueda":   "Buscar CFDI",
		"ctl00$MainContent$FiltroCentral": q.CentralFilter(),
		"ctl00$MainContent$hfInicialBool": "false",
		FieldUUID:                         "",
	}
}

func twoDigits(n int) string {
	return fmt.Sprintf("%02d", n)
}

// Issued documents use one calendar widget per bound, named CldFechaInicial2 and CldFechaFinal2.
func issuedDateFields(calendar string, start, end time.Time) map[string]string {
	final := "ctl00$MainContent$CldFechaFinal2"
	return map[string]string{
		"ctl00$MainContent$hfInicial": strconv.Itoa(start.Year()),
		calendar + "$Calendario_text": start.Format("02/01/2006"),
		calendar + "$DdlHora":         twoDigits(start.Hour()),
		calendar + "$DdlMinuto":       twoDigits(start.Minute()),
		calendar + "$DdlSegundo":      twoDigits(start.Second()),
		"ctl00$MainContent$hfFinal":   strconv.Itoa(end.Year()),
		final + "$Calendario_text":    end.Format("02/01/2006"),
		final + "$DdlHora":            twoDigits(end.Hour()),
		final + "$DdlMinuto":          twoDigits(end.Minute()),
		final + "$DdlSegundo":         twoDigits(end.Second()),
	}
}

// Received documents use a single day selector plus start and end time widgets.
func receivedDateFields(calendar string, start, end time.Time) map[string]string {
	return map[string]string{
		calendar + "$DdlAnio":       strconv.Itoa(start.Year()),
		calendar + "$DdlMes":        strconv.Itoa(int(start.Month())),
		calendar + "$DdlDia":        twoDigits(start.Day()),
		calendar + "$DdlHora":       twoDigits(start.Hour()),
		calendar + "$DdlMinuto":     twoDigits(start.Minute()),
		calendar + "$DdlSegundo":    twoDigits(start.Second()),
		calendar + "$DdlHoraFin":    twoDigits(end.Hour()),
		calendar + "$DdlMinutoFin":  twoDigits(end.Minute()),
		calendar + "$DdlSegundoFin": twoDigits(end.Second()),
	}
}
