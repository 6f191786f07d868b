// Package exporter writes the forecast run artifacts: reconciled forecast
// CSVs, JSON metric reports, and the Excel evaluation workbook.
//
// CSV files carry a UTF-8 BOM so Excel opens them without mangling family
// names; JSON metric files are the machine-readable record a later run or
// the HTTP layer reads back.
package exporter
