package wordcount

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRenderers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "count grouping", got: FormatCount(1234567), want: "1,234,567"},
		{name: "average rounding", got: FormatAverage(25.456), want: "25.46"},
		{name: "average grouping", got: FormatAverage(1234.5), want: "1,234.50"},
		{name: "currency whole", got: FormatCurrency(decimal.NewFromInt(45)), want: "45.00"},
		{name: "currency grouping", got: FormatCurrency(decimal.RequireFromString("1234567.891")), want: "1,234,567.89"},
		{name: "currency small", got: FormatCurrency(decimal.RequireFromString("0.5")), want: "0.50"},
		{name: "currency negative", got: FormatCurrency(decimal.RequireFromString("-0.25")), want: "-0.25"},
		{
			name: "currency beyond int64",
			got:  FormatCurrency(decimal.RequireFromString("123456789012345678901234.567")),
			want: "123,456,789,012,345,678,901,234.57",
		},
		{name: "currency negative grouping", got: FormatCurrency(decimal.RequireFromString("-1234.5")), want: "-1,234.50"},
		{name: "currency rounds into next thousand", got: FormatCurrency(decimal.RequireFromString("999.999")), want: "1,000.00"},
		{
			name: "region line",
			got: RenderRegion(RegionStat{
				Name:      "Anchorage",
				Writers:   1200,
				Average:   25.456,
				WordCount: 1234567,
			}),
			want: "Anchorage has 1,200 writers averaging 25.46 words for a total of 1,234,567 words!",
		},
		{
			name: "donation line",
			got:  RenderDonation(RegionStat{Name: "Fairbanks", Donations: decimal.RequireFromString("1500")}),
			want: "Fairbanks has donated $1,500.00!",
		},
		{
			name: "donation summary",
			got:  RenderDonationSummary(decimal.NewFromInt(45)),
			want: "That's $45.00 donated. Commendable!",
		},
		{
			name: "user without today",
			got:  RenderUser(UserStat{Name: "jane", WordCount: 12000}),
			want: "jane has written 12,000 words!",
		},
		{
			name: "user with zero today",
			got:  RenderUser(UserStat{Name: "jane", WordCount: 12000, HasToday: true}),
			want: "jane has written 12,000 words!",
		},
		{
			name: "user with today",
			got:  RenderUser(UserStat{Name: "jane", WordCount: 12000, Today: 1667, HasToday: true}),
			want: "jane has written 1,667 words today for a total of 12,000 words!",
		},
		{
			name: "unknown identity",
			got:  RenderUnknownIdentity("jane doe"),
			want: "Something went wrong, perhaps jane doe isn't a NaNoWriMo username?",
		},
		{
			name: "goal",
			got:  RenderGoal(50000, 26667),
			want: "To reach 50,000 words, you should be at 26,667 words today",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if testCase.got != testCase.want {
				t.Fatalf("got %q, want %q", testCase.got, testCase.want)
			}
		})
	}
}
