package validate

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type form struct {
	Name  string `json:"name" validate:"required,min=3"`
	Price string `json:"price" validate:"required,money"`
	Code  string `json:"postalCode,omitempty" validate:"omitempty,len=4,numeric"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name   string
		in     form
		fields []string
		rules  []string
	}{
		{"valid", form{Name: "Shirt", Price: "19.99"}, nil, nil},
		{"integer price", form{Name: "Shirt", Price: "20"}, nil, nil},
		{"missing name", form{Price: "1.00"}, []string{"name"}, []string{"required"}},
		{"short name", form{Name: "ab", Price: "1.00"}, []string{"name"}, []string{"min"}},
		{"three decimals", form{Name: "Shirt", Price: "1.999"}, []string{"price"}, []string{"money"}},
		{"negative price", form{Name: "Shirt", Price: "-1"}, []string{"price"}, []string{"money"}},
		{"bad postal code", form{Name: "Shirt", Price: "1", Code: "12a4"}, []string{"postalCode"}, []string{"numeric"}},
		{"everything wrong", form{Code: "1"}, []string{"name", "price", "postalCode"}, []string{"required", "required", "len"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.in)
			if tt.fields == nil {
				require.NoError(t, err)
				return
			}

			var verr *Error
			require.True(t, errors.As(err, &verr), "got %v", err)
			var fields, rules []string
			for _, f := range verr.Fields {
				fields = append(fields, f.Field)
				rules = append(rules, f.Rule)
				assert.NotEmpty(t, f.Message)
			}
			assert.Equal(t, tt.fields, fields)
			assert.Equal(t, tt.rules, rules)
		})
	}
}

func TestStruct_Message(t *testing.T) {
	err := Struct(form{Name: "ab", Price: "x"})
	require.Error(t, err)
	assert.Equal(t, "name must be at least 3 long; price must be a non-negative amount with at most two decimal places", err.Error())
}

func TestVar(t *testing.T) {
	require.NoError(t, Var("size", "M", "oneof=S M L"))

	err := Var("size", "XXL", "oneof=S M L")
	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []FieldError{{Field: "size", Rule: "oneof=S M L", Message: "size is invalid"}}, verr.Fields)
}
