package layout

import (
	"testing"

	"github.com/pixil98/go-testutil"
)

func TestDefault_Valid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default layout invalid: %v", err)
	}
}

func TestDepositOption(t *testing.T) {
	l := Default()
	tests := map[string]struct {
		amount int
		exp    int
	}{
		"one":         {amount: 1, exp: 2},
		"four":        {amount: 4, exp: 2},
		"five":        {amount: 5, exp: 3},
		"nine":        {amount: 9, exp: 3},
		"ten":         {amount: 10, exp: 4},
		"twentyseven": {amount: 27, exp: 4},
		"full":        {amount: 28, exp: 8},
		"all":         {amount: -1, exp: 8},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, "option", l.DepositOption(tt.amount), tt.exp)
		})
	}
}

func TestValidate_Aggregates(t *testing.T) {
	l := Default()
	l.DialogProbes = []DialogProbe{{Kind: "banner"}}
	l.DropOption = 0
	err := l.Validate()
	testutil.AssertErrorContains(t, err, "unknown kind")
	testutil.AssertErrorContains(t, err, "drop_option")
}
