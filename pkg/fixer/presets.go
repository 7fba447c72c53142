package fixer

import "maps"

// KardexProduct maps product fields to the Kardex PPG_Artikel table.
var KardexProduct = FieldMap{
	"kardex_product_id":      "Artikelid",
	"kardex_product_name":    "Artikelbezeichnung",
	"kardex_status":          "STATUS",
	"kardex_info_1":          "Info1",
	"kardex_info_2":          "Info2",
	"kardex_info_3":          "Info3",
	"kardex_info_4":          "Info4",
	"kardex_ch_verw":         "ChVerw",
	"kardex_sn_verw":         "SnVerw",
	"kardex_search":          "Suchbegriff",
	"kardex_product_group":   "Artikelgruppe",
	"kardex_unit":            "Einheit",
	"kardex_row_create_time": "Row_Create_Time",
	"kardex_row_update_time": "Row_Update_Time",
	"kardex_is_fifo":         "isFIFO",
}

// Country is the search document of a country record.
var Country = FieldMap{
	"id":   "id",
	"name": "name",
	"code": "code",
}

var presets = map[string]FieldMap{
	"kardex_product": KardexProduct,
	"country":        Country,
}

// Preset returns a copy of the named built-in table.
func Preset(name string) (FieldMap, bool) {
	m, ok := presets[name]
	if !ok {
		return nil, false
	}
	return maps.Clone(m), true
}

// PresetNames lists the built-in tables.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	return names
}
