// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package entity

// field names shared by several kinds
const (
	FieldAnnotations             = "annotations"
	FieldSubject                 = "subject"
	FieldClass                   = "class"
	FieldProperty                = "property"
	FieldValue                   = "value"
	FieldSuperClassExpression    = "superClassExpression"
	FieldClassAssertions         = "classAssertions"
	FieldNegativeClassAssertions = "negativeClassAssertions"
	FieldProposition             = "proposition"
	FieldSender                  = "sender"
	FieldAmount                  = "amount"
	FieldHeight                  = "height"
	FieldLogIndex                = "logIndex"
)

// FieldSpec describes one field of a kind
type FieldSpec struct {
	Name string
	// Repeated fields are set-like and sorted before encoding
	Repeated bool
	// Text fields are NFC normalized before encoding
	Text bool
}

var _schemas = map[Kind][]FieldSpec{
	KindClass: {
		{Name: FieldAnnotations, Repeated: true},
		{Name: FieldSuperClassExpression, Repeated: true},
	},
	KindIndividual: {
		{Name: FieldAnnotations, Repeated: true},
		{Name: FieldClassAssertions, Repeated: true},
		{Name: FieldNegativeClassAssertions, Repeated: true},
	},
	KindAnnotation: {
		{Name: FieldAnnotations, Repeated: true},
		{Name: FieldProperty},
		{Name: FieldValue, Text: true},
	},
	KindAnnotationProperty: {
		{Name: FieldAnnotations, Repeated: true},
	},
	KindClassAssertion: {
		{Name: FieldAnnotations, Repeated: true},
		{Name: FieldSubject},
		{Name: FieldClass},
	},
	KindNegativeClassAssertion: {
		{Name: FieldAnnotations, Repeated: true},
		{Name: FieldSubject},
		{Name: FieldClass},
	},
	KindPropositionStake: {
		{Name: FieldProposition},
		{Name: FieldSender},
		{Name: FieldAmount},
		{Name: FieldHeight},
		{Name: FieldLogIndex},
	},
}

// Schema returns the ordered field specs of a kind
func Schema(k Kind) ([]FieldSpec, bool) {
	s, ok := _schemas[k]
	return s, ok
}
