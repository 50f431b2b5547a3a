// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package entity

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

// MaxFieldSize is the largest accepted size of a single field value
const MaxFieldSize = 64 * 1024

// ErrEncoding indicates malformed or oversized entity content
var ErrEncoding = errors.New("entity encoding error")

// Entity is an immutable kind-tagged record. Scalar fields hold exactly one value.
type Entity struct {
	Kind   Kind
	Fields map[string][][]byte
}

// New creates an entity of the given kind
func New(kind Kind) *Entity {
	return &Entity{
		Kind:   kind,
		Fields: make(map[string][][]byte),
	}
}

// Set sets a scalar field
func (e *Entity) Set(name string, value []byte) *Entity {
	e.Fields[name] = [][]byte{value}
	return e
}

// Add appends a value to a repeated field
func (e *Entity) Add(name string, values ...[]byte) *Entity {
	e.Fields[name] = append(e.Fields[name], values...)
	return e
}

// Field returns the value of a scalar field, nil if absent
func (e *Entity) Field(name string) []byte {
	if v := e.Fields[name]; len(v) > 0 {
		return v[0]
	}
	return nil
}

// Values returns the values of a repeated field
func (e *Entity) Values(name string) [][]byte {
	return e.Fields[name]
}

// canonical returns the normalized field list in schema order
func (e *Entity) canonical() ([]interface{}, error) {
	schema, ok := Schema(e.Kind)
	if !ok {
		return nil, errors.Wrapf(ErrEncoding, "kind %#x", uint64(e.Kind))
	}
	known := make(map[string]struct{}, len(schema))
	list := make([]interface{}, 0, len(schema)+1)
	list = append(list, uint64(e.Kind))
	for _, fs := range schema {
		known[fs.Name] = struct{}{}
		values := e.Fields[fs.Name]
		normalized := make([][]byte, len(values))
		for i, v := range values {
			if len(v) > MaxFieldSize {
				return nil, errors.Wrapf(ErrEncoding, "field %s of %s has %d bytes", fs.Name, e.Kind, len(v))
			}
			if fs.Text {
				v = norm.NFC.Bytes(v)
			}
			normalized[i] = v
		}
		if fs.Repeated {
			sort.Slice(normalized, func(i, j int) bool {
				return bytes.Compare(normalized[i], normalized[j]) < 0
			})
			list = append(list, normalized)
			continue
		}
		if len(normalized) != 1 {
			return nil, errors.Wrapf(ErrEncoding, "field %s of %s has %d values", fs.Name, e.Kind, len(normalized))
		}
		list = append(list, normalized[0])
	}
	for name := range e.Fields {
		if _, ok := known[name]; !ok {
			return nil, errors.Wrapf(ErrEncoding, "unknown field %s of %s", name, e.Kind)
		}
	}
	return list, nil
}

// Encode returns the canonical encoding of the entity
func (e *Entity) Encode() ([]byte, error) {
	list, err := e.canonical()
	if err != nil {
		return nil, err
	}
	data, err := rlp.EncodeToBytes(list)
	if err != nil {
		return nil, errors.Wrap(ErrEncoding, err.Error())
	}
	return data, nil
}

// ID returns the content identifier of the entity
func (e *Entity) ID() (cid.Cid, error) {
	data, err := e.Encode()
	if err != nil {
		return cid.Undef, err
	}
	return NewID(e.Kind, data)
}

// Decode parses a canonical encoding back into an entity
func Decode(data []byte) (*Entity, error) {
	var raw []rlp.RawValue
	if err := rlp.DecodeBytes(data, &raw); err != nil {
		return nil, errors.Wrap(ErrEncoding, err.Error())
	}
	if len(raw) == 0 {
		return nil, errors.Wrap(ErrEncoding, "empty entity")
	}
	var codec uint64
	if err := rlp.DecodeBytes(raw[0], &codec); err != nil {
		return nil, errors.Wrap(ErrEncoding, err.Error())
	}
	kind := Kind(codec)
	schema, ok := Schema(kind)
	if !ok {
		return nil, errors.Wrapf(ErrEncoding, "kind %#x", codec)
	}
	if len(raw) != len(schema)+1 {
		return nil, errors.Wrapf(ErrEncoding, "%s expects %d fields, got %d", kind, len(schema), len(raw)-1)
	}
	e := New(kind)
	for i, fs := range schema {
		if fs.Repeated {
			var values [][]byte
			if err := rlp.DecodeBytes(raw[i+1], &values); err != nil {
				return nil, errors.Wrapf(ErrEncoding, "field %s: %v", fs.Name, err)
			}
			if len(values) > 0 {
				e.Add(fs.Name, values...)
			}
			continue
		}
		var value []byte
		if err := rlp.DecodeBytes(raw[i+1], &value); err != nil {
			return nil, errors.Wrapf(ErrEncoding, "field %s: %v", fs.Name, err)
		}
		e.Set(fs.Name, value)
	}
	return e, nil
}

// MarshalJSON renders the entity with hex values, text fields as strings
func (e *Entity) MarshalJSON() ([]byte, error) {
	schema, ok := Schema(e.Kind)
	if !ok {
		return nil, errors.Wrapf(ErrEncoding, "kind %#x", uint64(e.Kind))
	}
	out := map[string]interface{}{"type": e.Kind.String()}
	if id, err := e.ID(); err == nil {
		out["cid"] = hexutil.Encode(id.Bytes())
	}
	for _, fs := range schema {
		render := func(v []byte) string {
			if fs.Text {
				return string(v)
			}
			return hexutil.Encode(v)
		}
		if fs.Repeated {
			values := make([]string, 0, len(e.Fields[fs.Name]))
			for _, v := range e.Fields[fs.Name] {
				values = append(values, render(v))
			}
			out[fs.Name] = values
			continue
		}
		if v := e.Fields[fs.Name]; len(v) > 0 {
			out[fs.Name] = render(v[0])
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses the format produced by MarshalJSON
func (e *Entity) UnmarshalJSON(data []byte) error {
	var in map[string]json.RawMessage
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	var typ string
	if err := json.Unmarshal(in["type"], &typ); err != nil {
		return errors.Wrap(err, "missing entity type")
	}
	kind, err := ParseKind(typ)
	if err != nil {
		return err
	}
	schema, _ := Schema(kind)
	parsed := New(kind)
	parse := func(fs FieldSpec, s string) ([]byte, error) {
		if fs.Text {
			return []byte(s), nil
		}
		return hexutil.Decode(s)
	}
	for _, fs := range schema {
		msg, ok := in[fs.Name]
		if !ok {
			continue
		}
		if fs.Repeated {
			var values []string
			if err := json.Unmarshal(msg, &values); err != nil {
				return errors.Wrapf(err, "field %s", fs.Name)
			}
			for _, s := range values {
				v, err := parse(fs, s)
				if err != nil {
					return errors.Wrapf(err, "field %s", fs.Name)
				}
				parsed.Add(fs.Name, v)
			}
			continue
		}
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return errors.Wrapf(err, "field %s", fs.Name)
		}
		v, err := parse(fs, s)
		if err != nil {
			return errors.Wrapf(err, "field %s", fs.Name)
		}
		parsed.Set(fs.Name, v)
	}
	*e = *parsed
	return nil
}
