package parser

import "fmt"

// FormatError 探测区内找不到可识别的表头
type FormatError struct {
	Sheet  string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Sheet == "" {
		return fmt.Sprintf("unrecognized format: %s", e.Reason)
	}
	return fmt.Sprintf("unrecognized format in sheet %q: %s", e.Sheet, e.Reason)
}

// MappingError 手工映射无效
type MappingError struct {
	Field  string
	Column string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("invalid mapping %q -> %q: %s", e.Column, e.Field, e.Reason)
}
