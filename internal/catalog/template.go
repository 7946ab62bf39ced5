package catalog

import (
	"encoding/csv"
	"fmt"
	"io"

	"catalog-import-service/internal/models"

	"github.com/xuri/excelize/v2"
)

const instructionsSheet = "Instructions"

// WriteTemplateCSV writes the header row followed by one example row.
func WriteTemplateCSV(w io.Writer, delimiter string) error {
	sep := []rune(delimiter)
	if len(sep) != 1 {
		return ErrBadDelimiter
	}

	template := models.CatalogImportTemplate()
	headers := make([]string, len(template.Columns))
	example := make([]string, len(template.Columns))
	for i, col := range template.Columns {
		headers[i] = col.Name
		example[i] = col.Example
	}

	writer := csv.NewWriter(w)
	writer.Comma = sep[0]
	if err := writer.Write(headers); err != nil {
		return err
	}
	if err := writer.Write(example); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// WriteTemplateXLSX writes an empty catalog sheet with marked required
// columns and an instructions sheet describing every column.
func WriteTemplateXLSX(w io.Writer) error {
	template := models.CatalogImportTemplate()

	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", catalogSheet)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	requiredStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C65911"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	for i, col := range template.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		headerText := col.Name
		style := headerStyle
		if col.Required {
			headerText = col.Name + " *"
			style = requiredStyle
		}
		f.SetCellValue(catalogSheet, cell, headerText)
		f.SetCellStyle(catalogSheet, cell, cell, style)

		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(catalogSheet, colName, colName, 22)
	}

	f.NewSheet(instructionsSheet)
	f.SetCellValue(instructionsSheet, "A1", "Catalog Import Instructions")

	f.SetCellValue(instructionsSheet, "A3", "REFERENCES:")
	f.SetCellValue(instructionsSheet, "A4", "- category, subcategory, thirdsubcategory, brand, model and modification are matched by name and created when missing.")
	f.SetCellValue(instructionsSheet, "A5", "- subcategory is looked up within the category, thirdsubcategory within the subcategory, model within the first brand.")
	f.SetCellValue(instructionsSheet, "A6", "- images must be uploaded beforehand; cells refer to them by filename or alt text.")

	f.SetCellValue(instructionsSheet, "A8", "CELL FORMATS:")
	f.SetCellValue(instructionsSheet, "A9", "- specifications: Name:Value,Name:Value")
	f.SetCellValue(instructionsSheet, "A10", "- marketplaceLinks_others: Name:URL[:LogoFilename],...")
	f.SetCellValue(instructionsSheet, "A11", "- distributors: Name:URL[:Location],...")
	f.SetCellValue(instructionsSheet, "A12", "- brand: Brand1|Brand2")
	f.SetCellValue(instructionsSheet, "A13", "- featured, inStock: true/1/yes, anything else is false; empty inStock means true")

	f.SetCellValue(instructionsSheet, "A15", "Column Definitions:")
	f.SetCellValue(instructionsSheet, "A16", "Column")
	f.SetCellValue(instructionsSheet, "B16", "Description")
	f.SetCellValue(instructionsSheet, "C16", "Required")
	f.SetCellValue(instructionsSheet, "D16", "Type")
	f.SetCellValue(instructionsSheet, "E16", "Example")

	for i, col := range template.Columns {
		row := i + 17
		f.SetCellValue(instructionsSheet, fmt.Sprintf("A%d", row), col.Name)
		f.SetCellValue(instructionsSheet, fmt.Sprintf("B%d", row), col.Description)
		required := "Optional"
		if col.Required {
			required = "Required"
		}
		f.SetCellValue(instructionsSheet, fmt.Sprintf("C%d", row), required)
		f.SetCellValue(instructionsSheet, fmt.Sprintf("D%d", row), col.Type)
		f.SetCellValue(instructionsSheet, fmt.Sprintf("E%d", row), col.Example)
	}

	f.SetColWidth(instructionsSheet, "A", "A", 28)
	f.SetColWidth(instructionsSheet, "B", "B", 60)
	f.SetColWidth(instructionsSheet, "C", "C", 15)
	f.SetColWidth(instructionsSheet, "D", "D", 15)
	f.SetColWidth(instructionsSheet, "E", "E", 40)

	sheetIdx, _ := f.GetSheetIndex(catalogSheet)
	f.SetActiveSheet(sheetIdx)

	return f.Write(w)
}
