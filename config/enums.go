package config

import (
	"fmt"
	"strings"
)

// PageSize selects the fixed output page geometry.
type PageSize int

const (
	PageSizeA4 PageSize = iota
	PageSizeLetter
)

var pageSizeNames = map[PageSize]string{
	PageSizeA4:     "a4",
	PageSizeLetter: "letter",
}

func ParsePageSize(name string) (PageSize, error) {
	for ps, n := range pageSizeNames {
		if strings.EqualFold(n, name) {
			return ps, nil
		}
	}
	return PageSizeA4, fmt.Errorf("%s is not a valid PageSize (supported: %s)", name, strings.Join(PageSizeNames(), ", "))
}

func PageSizeNames() []string {
	return []string{"a4", "letter"}
}

func (ps PageSize) String() string {
	if n, ok := pageSizeNames[ps]; ok {
		return n
	}
	// this should never happen
	panic("unsupported page size requested")
}

// Dimensions returns page width and height in points.
func (ps PageSize) Dimensions() (w, h float64) {
	switch ps {
	case PageSizeLetter:
		return 612, 792
	default:
		return 595.28, 841.89
	}
}

func (ps PageSize) MarshalYAML() (any, error) {
	return ps.String(), nil
}

func (ps *PageSize) UnmarshalYAML(unmarshal func(any) error) error {
	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}
	v, err := ParsePageSize(name)
	if err != nil {
		return err
	}
	*ps = v
	return nil
}
