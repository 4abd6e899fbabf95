package query

import (
	"fmt"
	"sort"
	"strings"
)

// Postback field names of the search filters.
const (
	FieldRFC          = "ctl00$MainContent$TxtRfcReceptor"
	FieldUUID         = "ctl00$MainContent$TxtUUID"
	FieldComplement   = "ctl00$MainContent$ddlComplementos"
	FieldVoucherState = "ctl00$MainContent$DdlEstadoComprobante"
)

// Option pairs a postback field name with its value.
type Option interface {
	FieldName() string
	Value() string
}

// RFC filters by counterpart RFC. The zero value means "any".
type RFC struct {
	value string
}

// NewRFC normalizes an RFC filter value to upper case.
func NewRFC(value string) RFC {
	return RFC{value: strings.ToUpper(strings.TrimSpace(value))}
}

// FieldName implements Option.
func (RFC) FieldName() string { return FieldRFC }

// Value implements Option.
func (r RFC) Value() string { return r.value }

// UUID filters by folio fiscal.
type UUID struct {
	value string
}

// NewUUID validates a non-empty UUID filter. The value is posted as given, trimmed.
func NewUUID(value string) (UUID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return UUID{}, ErrEmptyUUID
	}
	return UUID{value: value}, nil
}

// FieldName implements Option.
func (UUID) FieldName() string { return FieldUUID }

// Value implements Option.
func (u UUID) Value() string { return u.value }

// CatalogEntry is one row of a closed catalog.
type CatalogEntry struct {
	Key         string
	Code        string
	Description string
}

// Complement filters by CFDI complement. The zero value is "todos".
type Complement struct {
	entry CatalogEntry
}

// Complement catalog: key -> portal code + description.
var complements = map[string]CatalogEntry{
	"todos":                     {Code: "-1", Description: "Cualquier complemento"},
	"sincomplemento":            {Code: "8", Description: "Sin complemento"},
	"acreditamientoieps10":      {Code: "acreditamientoieps10", Description: "Acreditamiento del IEPS 1.0"},
	"aerolineas":                {Code: "aerolineas", Description: "Aerolíneas 1.0"},
	"cartaporte20":              {Code: "cartaporte20", Description: "Carta Porte 2.0"},
	"cartaporte30":              {Code: "cartaporte30", Description: "Carta Porte 3.0"},
	"cartaporte31":              {Code: "cartaporte31", Description: "Carta Porte 3.1"},
	"cce20":                     {Code: "cce20", Description: "Comercio Exterior 2.0"},
	"certificadodestruccion":    {Code: "certificadodedestruccion", Description: "Certificado de Destrucción 1.0"},
	"consumodecombustibles":     {Code: "consumodecombustibles11", Description: "Consumo de Combustibles 1.1"},
	"detallista":                {Code: "detallista", Description: "Detallista"},
	"divisas":                   {Code: "divisas", Description: "Divisas 1.0"},
	"donat11":                   {Code: "donat11", Description: "Donatarias 1.1"},
	"ecc12":                     {Code: "ecc12", Description: "Estado de Cuenta de Combustibles 1.2"},
	"gastoshidrocarburos10":     {Code: "gastoshidrocarburos10", Description: "Gastos Hidrocarburos 1.0"},
	"iedu":                      {Code: "iedu", Description: "Instituciones Educativas Privadas 1.0"},
	"implocal":                  {Code: "implocal", Description: "Impuestos Locales 1.0"},
	"ine11":                     {Code: "ine11", Description: "INE 1.1"},
	"ingresoshidrocarburos":     {Code: "ingresoshidrocarburos", Description: "Ingresos Hidrocarburos 1.0"},
	"leyendasfisc":              {Code: "leyendasfisc", Description: "Leyendas Fiscales 1.0"},
	"nomina12":                  {Code: "nomina12", Description: "Nómina 1.2"},
	"notariospublicos":          {Code: "notariospublicos", Description: "Notarios Públicos 1.0"},
	"obrasarteantiguedades":     {Code: "obrasarteantiguedades", Description: "Obras de Arte Plásticas y Antigüedades 1.0"},
	"pagoenespecie":             {Code: "pagoenespecie", Description: "Pago en Especie 1.0"},
	"pagos20":                   {Code: "pagos20", Description: "Recepción de Pagos 2.0"},
	"pfic":                      {Code: "pfic", Description: "Persona Física Integrante de Coordinado 1.0"},
	"renovacionvehicular":       {Code: "renovacionysustitucionvehiculos", Description: "Renovación y Sustitución de Vehículos 1.0"},
	"servicioparcial":           {Code: "servicioparcialconstruccion", Description: "Servicios Parciales de Construcción 1.0"},
	"spei":                      {Code: "spei", Description: "SPEI de Terceros a Terceros"},
	"terceros11":                {Code: "terceros11", Description: "Terceros 1.1"},
	"turistapasajeroextranjero": {Code: "turistapasajeroextranjero", Description: "Turista Pasajero Extranjero 1.0"},
	"valesdedespensa":           {Code: "valesdedespensa", Description: "Vales de Despensa 1.0"},
	"vehiculousado":             {Code: "vehiculousado", Description: "Vehículo Usado 1.0"},
	"ventavehiculos11":          {Code: "ventavehiculos11", Description: "Venta de Vehículos 1.1"},
}

// ComplementByKey looks up a complement; unknown keys fail.
func ComplementByKey(key string) (Complement, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	entry, ok := complements[key]
	if !ok {
		return Complement{}, fmt.Errorf("%w: complement %q", ErrUnknownCatalogKey, key)
	}
	entry.Key = key
	return Complement{entry: entry}, nil
}

// Complements lists the complement catalog sorted by key.
func Complements() []CatalogEntry {
	return catalogEntries(complements)
}

// FieldName implements Option.
func (Complement) FieldName() string { return FieldComplement }

// Value implements Option.
func (c Complement) Value() string {
	if c.entry.Code == "" {
		return complements["todos"].Code
	}
	return c.entry.Code
}

// Key returns the catalog key, "todos" for the zero value.
func (c Complement) Key() string {
	if c.entry.Key == "" {
		return "todos"
	}
	return c.entry.Key
}

// VoucherState filters by document state. The zero value is "todos".
type VoucherState struct {
	entry CatalogEntry
}

var voucherStates = map[string]CatalogEntry{
	"todos":      {Code: "-1", Description: "Todos"},
	"cancelados": {Code: "0", Description: "Cancelado"},
	"vigentes":   {Code: "1", Description: "Vigente"},
}

// VoucherStateByKey looks up a voucher state; unknown keys fail.
func VoucherStateByKey(key string) (VoucherState, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	entry, ok := voucherStates[key]
	if !ok {
		return VoucherState{}, fmt.Errorf("%w: voucher state %q", ErrUnknownCatalogKey, key)
	}
	entry.Key = key
	return VoucherState{entry: entry}, nil
}

// VoucherStates lists the voucher state catalog sorted by key.
func VoucherStates() []CatalogEntry {
	return catalogEntries(voucherStates)
}

// FieldName implements Option.
func (VoucherState) FieldName() string { return FieldVoucherState }

// Value implements Option.
func (v VoucherState) Value() string {
	if v.entry.Code == "" {
		return voucherStates["todos"].Code
	}
	return v.entry.Code
}

// Key returns the catalog key, "todos" for the zero value.
func (v VoucherState) Key() string {
	if v.entry.Key == "" {
		return "todos"
	}
	return v.entry.Key
}

func catalogEntries(catalog map[string]CatalogEntry) []CatalogEntry {
	out := make([]CatalogEntry, 0, len(catalog))
	for key, entry := range catalog {
		entry.Key = key
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
