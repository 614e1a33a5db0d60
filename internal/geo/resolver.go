// Package geo 邮编 -> 邦/行政区解析
package geo

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Unknown 无法解析时的占位值
const Unknown = "Unknown"

// Resolver 邮编地理解析器；构造后只读，可并发使用
type Resolver struct {
	ranges          []prefixRange
	stateOverrides  map[int]string
	stateByPin      map[string]string
	districtByPin   map[string]string
	districtByPrefx map[string]string
}

// NewResolver 使用内置参考表创建解析器
func NewResolver() *Resolver {
	r := &Resolver{
		ranges:          builtinStateRanges,
		stateOverrides:  make(map[int]string, len(builtinStateOverrides)),
		stateByPin:      make(map[string]string),
		districtByPin:   make(map[string]string, len(builtinDistrictByPin)),
		districtByPrefx: make(map[string]string, len(builtinDistrictByPrefix)),
	}
	for k, v := range builtinStateOverrides {
		r.stateOverrides[k] = v
	}
	for k, v := range builtinDistrictByPin {
		r.districtByPin[k] = v
	}
	for k, v := range builtinDistrictByPrefix {
		r.districtByPrefx[k] = v
	}
	return r
}

// LoadResolver 内置表 + 参考 CSV 覆盖（path 为空时只用内置表）
func LoadResolver(path string) (*Resolver, error) {
	r := NewResolver()
	if path == "" {
		return r, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geo reference: %w", err)
	}
	defer f.Close()

	if err := r.overlay(f); err != nil {
		return nil, fmt.Errorf("failed to load geo reference %s: %w", path, err)
	}
	return r, nil
}

// overlay 读取 pincode,state,district 三列参考数据
func (r *Resolver) overlay(src io.Reader) error {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	idx := map[string]int{"pincode": -1, "state": -1, "district": -1}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, ok := idx[key]; ok {
			idx[key] = i
		}
	}
	if idx["pincode"] < 0 {
		return errors.New("reference file has no pincode column")
	}

	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		pin, ok := normalizePincode(field(rec, idx["pincode"]))
		if !ok {
			continue
		}
		if s := normalizeName(field(rec, idx["state"])); s != "" {
			r.stateByPin[pin] = s
		}
		if d := normalizeName(field(rec, idx["district"])); d != "" {
			r.districtByPin[pin] = d
		}
	}
	return nil
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}

// ResolveState 邮编 -> 邦名（大写），无法解析返回 Unknown
func (r *Resolver) ResolveState(pincode string) string {
	pin, ok := normalizePincode(pincode)
	if !ok {
		return Unknown
	}
	if s, ok := r.stateByPin[pin]; ok {
		return s
	}
	prefix, _ := strconv.Atoi(pin[:3])
	if s, ok := r.stateOverrides[prefix]; ok {
		return s
	}
	for _, rg := range r.ranges {
		if prefix >= rg.lo && prefix <= rg.hi {
			return rg.state
		}
	}
	return Unknown
}

// ResolveDistrict 行政区：优先使用源数据提示，其次精确邮编，再次分拣区前缀
func (r *Resolver) ResolveDistrict(pincode, hint string) string {
	if h := normalizeName(hint); h != "" {
		return h
	}
	pin, ok := normalizePincode(pincode)
	if !ok {
		return Unknown
	}
	if d, ok := r.districtByPin[pin]; ok {
		return d
	}
	if d, ok := r.districtByPrefx[pin[:3]]; ok {
		return d
	}
	return Unknown
}

// normalizePincode 去除空白，要求 6 位数字且首位非 0
func normalizePincode(s string) (string, bool) {
	pin := strings.Join(strings.Fields(s), "")
	pin = strings.TrimSuffix(pin, ".0")
	if len(pin) != 6 || pin[0] == '0' {
		return "", false
	}
	for _, ch := range pin {
		if ch < '0' || ch > '9' {
			return "", false
		}
	}
	return pin, true
}

func normalizeName(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}
