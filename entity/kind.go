// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package entity

import (
	"sort"

	"github.com/pkg/errors"
)

// Kind is the multicodec tag of an entity type
type Kind uint64

// entity kinds
const (
	KindClass                  Kind = 0xc000
	KindIndividual             Kind = 0xc001
	KindAnnotation             Kind = 0xc002
	KindAnnotationProperty     Kind = 0xc003
	KindClassAssertion         Kind = 0xc014
	KindNegativeClassAssertion Kind = 0xc015
	KindPropositionStake       Kind = 0xc0f0
)

var (
	// ErrUnknownKind is returned for a codec or name which is not an entity kind
	ErrUnknownKind = errors.New("unknown entity kind")

	_kindNames = map[Kind]string{
		KindClass:                  "Class",
		KindIndividual:             "Individual",
		KindAnnotation:             "Annotation",
		KindAnnotationProperty:     "AnnotationProperty",
		KindClassAssertion:         "ClassAssertion",
		KindNegativeClassAssertion: "NegativeClassAssertion",
		KindPropositionStake:       "PropositionStake",
	}
)

// String returns the name of the kind
func (k Kind) String() string {
	if name, ok := _kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Valid returns true if the kind is known
func (k Kind) Valid() bool {
	_, ok := _kindNames[k]
	return ok
}

// ParseKind returns the kind of the given name
func ParseKind(name string) (Kind, error) {
	for k, n := range _kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownKind, "name %s", name)
}

// Kinds returns all known kinds sorted by codec
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(_kindNames))
	for k := range _kindNames {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
