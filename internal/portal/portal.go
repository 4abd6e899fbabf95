// Package portal holds the fixed contracts of the SAT CFDI portal: URLs, page markers,
// download and resource types, and the browser header profiles the server expects.
package portal

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Portal and authentication URLs.
const (
	URLPortalCfdi         = "https://portalcfdi.facturaelectronica.sat.gob.mx/"
	URLPortalCfdiLogout   = URLPortalCfdi + "logout.aspx?salir=y"
	URLConsultaEmisor     = URLPortalCfdi + "ConsultaEmisor.aspx"
	URLConsultaReceptor   = URLPortalCfdi + "ConsultaReceptor.aspx"
	URLRepresentacionPDF  = URLPortalCfdi + "RepresentacionImpresa.aspx?Datos="
	URLAuthLogin          = "https://cfdiau.sat.gob.mx/nidp/wsfed/ep?id=SATUPCFDiCon&sid=0&option=credential&sid=0"
	URLAuthLogout         = "https://cfdiau.sat.gob.mx/commonauth/logout?logoutcallback=" + URLPortalCfdi
	URLAuthLoginReferer   = "https://cfdiau.sat.gob.mx/"
	URLPortalLoginReferer = URLAuthLogin
)

// Page markers used to detect the state of the session.
const (
	// MarkerAuthenticatedRedirect is present on the login page when the session is valid.
	MarkerAuthenticatedRedirect = URLPortalCfdi
	// MarkerCredentialEntry is present while the login form is still being shown.
	MarkerCredentialEntry = "Ecom_User_ID"
	// MarkerAuthenticatedRFC prefixes the RFC shown on the portal once registered.
	MarkerAuthenticatedRFC = "RFC Autenticado: "
)

// MarkerSessionExpired is present on the portal main page when the server bounced the
// request back to the logout flow.
var MarkerSessionExpired = url.QueryEscape(URLPortalCfdiLogout)

// UserAgent mimics a desktop browser.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/123.0.0.0 Safari/537.36"

// DownloadType selects the issued or received documents search page.
type DownloadType int

// Download types.
const (
	Issued DownloadType = iota + 1
	Received
)

type downloadTypeInfo struct {
	name          string
	url           string
	calendarField string
}

var downloadTypes = map[DownloadType]downloadTypeInfo{
	Issued:   {name: "issued", url: URLConsultaEmisor, calendarField: "ctl00$MainContent$CldFechaInicial2"},
	Received: {name: "received", url: URLConsultaReceptor, calendarField: "ctl00$MainContent$CldFecha"},
}

// ParseDownloadType maps "issued" / "received" (or the Spanish emitidos / recibidos) to a DownloadType.
func ParseDownloadType(s string) (DownloadType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "issued", "emitidos":
		return Issued, nil
	case "received", "recibidos":
		return Received, nil
	default:
		return 0, fmt.Errorf("unknown download type %q", s)
	}
}

// Valid reports whether d is one of the known download types.
func (d DownloadType) Valid() bool {
	_, ok := downloadTypes[d]
	return ok
}

// URL returns the search page for the download type.
func (d DownloadType) URL() string {
	return downloadTypes[d].url
}

// CalendarField is the postback field prefix of the date widget on the search page.
func (d DownloadType) CalendarField() string {
	return downloadTypes[d].calendarField
}

func (d DownloadType) String() string {
	if info, ok := downloadTypes[d]; ok {
		return info.name
	}
	return fmt.Sprintf("DownloadType(%d)", int(d))
}

// ResourceType is a kind of file linked from a metadata row.
type ResourceType int

// Resource types.
const (
	ResourceXML ResourceType = iota + 1
	ResourcePDF
	ResourceCancelRequest
	ResourceCancelVoucher
)

type resourceTypeInfo struct {
	name        string
	key         string
	suffix      string
	contentType string
	xml         bool
}

var resourceTypes = map[ResourceType]resourceTypeInfo{
	ResourceXML:           {name: "xml", key: "urlXml", suffix: ".xml", contentType: "application/xml", xml: true},
	ResourcePDF:           {name: "pdf", key: "urlPdf", suffix: ".pdf", contentType: "application/pdf"},
	ResourceCancelRequest: {name: "cancel-request", key: "urlCancelRequest", suffix: "-cancel-request.pdf", contentType: "application/pdf"},
	ResourceCancelVoucher: {name: "cancel-voucher", key: "urlCancelVoucher", suffix: "-cancel-voucher.pdf", contentType: "application/pdf"},
}

// ResourceTypes lists every resource type in a stable order.
func ResourceTypes() []ResourceType {
	return []ResourceType{ResourceXML, ResourcePDF, ResourceCancelRequest, ResourceCancelVoucher}
}

// ParseResourceType maps a resource name such as "xml" or "cancel-voucher" to its type.
func ParseResourceType(s string) (ResourceType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, rt := range ResourceTypes() {
		if resourceTypes[rt].name == name {
			return rt, nil
		}
	}
	return 0, fmt.Errorf("unknown resource type %q", s)
}

// Valid reports whether r is one of the known resource types.
func (r ResourceType) Valid() bool {
	_, ok := resourceTypes[r]
	return ok
}

// MetadataKey is the metadata attribute holding the download URL of the resource.
func (r ResourceType) MetadataKey() string {
	return resourceTypes[r].key
}

// FileName returns the conventional file name for the resource of uuid.
func (r ResourceType) FileName(uuid string) string {
	return strings.ToLower(uuid) + resourceTypes[r].suffix
}

// ContentType is the MIME type the downloaded content must have.
func (r ResourceType) ContentType() string {
	return resourceTypes[r].contentType
}

// IsXML reports whether the resource is a CFDI XML document.
func (r ResourceType) IsXML() bool {
	return resourceTypes[r].xml
}

// IsPDF reports whether the resource is a PDF document.
func (r ResourceType) IsPDF() bool {
	return r.Valid() && !resourceTypes[r].xml
}

func (r ResourceType) String() string {
	if info, ok := resourceTypes[r]; ok {
		return info.name
	}
	return fmt.Sprintf("ResourceType(%d)", int(r))
}

// BrowserHeaders returns the header profile of a plain page navigation.
func BrowserHeaders(referer string) http.Header {
	h := http.Header{}
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	h.Set("Accept-Language", "es-ES,es;q=0.8,en-US;q=0.5,en;q=0.3")
	h.Set("User-Agent", UserAgent)
	if referer != "" {
		h.Set("Referer", referer)
	}
	return h
}

// AjaxHeaders returns the header profile of an ASP.NET partial postback.
func AjaxHeaders(referer string) http.Header {
	h := BrowserHeaders(referer)
	h.Set("Accept", "*/*")
	h.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	h.Set("X-MicrosoftAjax", "Delta=true")
	h.Set("X-Requested-With", "XMLHttpRequest")
	h.Set("Cache-Control", "no-cache")
	return h
}
