// Package extractor reads the portal results table into metadata records. Columns are
// matched by header caption, so reordered or missing columns are tolerated.
package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/metadata"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/portal"
)

// ResultsTableSelector locates the results table.
const ResultsTableSelector = "table#ctl00_MainContent_tblResult"

// DefaultCaptions maps each metadata key to the header caption of its column.
func DefaultCaptions() map[string]string {
	return map[string]string{
		"uuid":                      "Folio Fiscal",
		"rfcEmisor":                 "RFC Emisor",
		"nombreEmisor":              "Nombre o Razón Social del Emisor",
		"rfcReceptor":               "RFC Receptor",
		"nombreReceptor":            "Nombre o Razón Social del Receptor",
		"fechaEmision":              "Fecha de Emisión",
		"fechaCertificacion":        "Fecha de Certificación",
		"pacCertifico":              "PAC que Certificó",
		"total":                     "Total",
		"efectoComprobante":         "Efecto del Comprobante",
		"estatusCancelacion":        "Estatus de cancelación",
		"estadoComprobante":         "Estado del Comprobante",
		"estatusProcesoCancelacion": "Estatus de Proceso de Cancelación",
		"fechaProcesoCancelacion":   "Fecha de Proceso de Cancelación",
		"rfcACuentaTerceros":        "RFC a cuenta de terceros",
		"motivoCancelacion":         "Motivo",
		"folioSustitucion":          "Folio de Sustitución",
	}
}

// link describes how a download button onclick script becomes a direct URL.
type link struct {
	resource portal.ResourceType
	selector string
	prefix   string
	suffix   string
	base     string
}

var links = []link{
	{
		resource: portal.ResourceXML,
		selector: "span#BtnDescarga",
		prefix:   "return AccionCfdi('",
		suffix:   "','Recuperacion');",
		base:     portal.URLPortalCfdi,
	},
	{
		resource: portal.ResourcePDF,
		selector: "span#BtnRI",
		prefix:   "recuperaRepresentacionImpresa('",
		suffix:   "');",
		base:     portal.URLRepresentacionPDF,
	},
	{
		resource: portal.ResourceCancelRequest,
		selector: "span#BtnRecuperaAcuse",
		prefix:   "AccionCfdi('",
		suffix:   "','Acuse');",
		base:     portal.URLPortalCfdi,
	},
	{
		resource: portal.ResourceCancelVoucher,
		selector: "span#BtnRecuperaAcuseFinal",
		prefix:   "javascript:window.location.href='",
		suffix:   "';",
		base:     portal.URLPortalCfdi,
	},
}

// Extract reads the results table of html. A nil captions map uses DefaultCaptions. It never
// fails: a page without results yields an empty list.
func Extract(html string, captions map[string]string) metadata.List {
	if captions == nil {
		captions = DefaultCaptions()
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return metadata.NewList()
	}
	table := doc.Find(ResultsTableSelector).First()
	if table.Length() == 0 {
		return metadata.NewList()
	}
	// The parser may insert tbody, and nested tables must not contribute rows.
	rows := table.Find("tr").FilterFunction(func(_ int, row *goquery.Selection) bool {
		return row.Closest("table").IsSelection(table)
	})
	if rows.Length() < 2 {
		return metadata.NewList()
	}

	positions := locatePositions(cellTexts(rows.First()), captions)
	if _, ok := positions["uuid"]; !ok {
		return metadata.NewList()
	}

	var items []metadata.Metadata
	rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
		values := cellTexts(row)
		data := make(map[string]string, len(positions)+len(links))
		for field, index := range positions {
			if index < len(values) {
				data[field] = values[index]
			}
		}
		uuid := data["uuid"]
		if uuid == "" {
			return
		}
		for _, l := range links {
			if url := l.extract(row); url != "" {
				data[l.resource.MetadataKey()] = url
			}
		}
		item, err := metadata.New(uuid, data)
		if err != nil {
			return
		}
		items = append(items, item)
	})
	return metadata.NewList(items...)
}

func cellTexts(row *goquery.Selection) []string {
	cells := row.Children().Filter("td, th")
	out := make([]string, 0, cells.Length())
	cells.Each(func(_ int, cell *goquery.Selection) {
		out = append(out, strings.TrimSpace(cell.Text()))
	})
	return out
}

func locatePositions(headers []string, captions map[string]string) map[string]int {
	positions := make(map[string]int, len(captions))
	for field, caption := range captions {
		for index, header := range headers {
			if header == caption {
				positions[field] = index
				break
			}
		}
	}
	return positions
}

func (l link) extract(row *goquery.Selection) string {
	onclick := strings.TrimSpace(row.Find(l.selector).First().AttrOr("onclick", ""))
	if onclick == "" {
		return ""
	}
	payload := strings.Replace(onclick, l.prefix, "", 1)
	payload = strings.Replace(payload, l.suffix, "", 1)
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return ""
	}
	return l.base + payload
}
