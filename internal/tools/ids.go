package tools

import "regexp"

var (
	paragraphIDPattern = regexp.MustCompile(`^p\d+$`)
	textRunIDPattern   = regexp.MustCompile(`^p\d+\.r\d+$`)
	tableIDPattern     = regexp.MustCompile(`^t\d+$`)
	rowIDPattern       = regexp.MustCompile(`^t\d+\.r\d+$`)
	cellIDPattern      = regexp.MustCompile(`^t\d+\.r\d+\.c\d+$`)
	imageIDPattern     = regexp.MustCompile(`^img\d+$`)
)

// IsParagraphID reports whether id has the paragraph shape (p12).
func IsParagraphID(id string) bool { return paragraphIDPattern.MatchString(id) }

// IsTextRunID reports whether id has the inline text shape (p12.r3).
func IsTextRunID(id string) bool { return textRunIDPattern.MatchString(id) }

// IsTableID reports whether id has the table shape (t4).
func IsTableID(id string) bool { return tableIDPattern.MatchString(id) }

// IsTableRowID reports whether id has the table row shape (t4.r2).
func IsTableRowID(id string) bool { return rowIDPattern.MatchString(id) }

// IsTableCellID reports whether id has the table cell shape (t4.r2.c1).
func IsTableCellID(id string) bool { return cellIDPattern.MatchString(id) }

// IsImageID reports whether id has the image shape (img7).
func IsImageID(id string) bool { return imageIDPattern.MatchString(id) }

// IsBlockID reports whether id can address a top-level element.
func IsBlockID(id string) bool {
	return IsParagraphID(id) || IsTableID(id) || IsImageID(id)
}

// IsStyleTargetID reports whether id can be restyled by set_text_style.
func IsStyleTargetID(id string) bool {
	return IsParagraphID(id) || IsTextRunID(id) || IsTableCellID(id) || IsTableRowID(id)
}

// IsElementID reports whether id has any known identifier shape.
func IsElementID(id string) bool {
	return IsBlockID(id) || IsTextRunID(id) || IsTableRowID(id) || IsTableCellID(id)
}
