package wordcount

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// UnavailableMessage is the reply used when the remote service cannot be reached.
const UnavailableMessage = "I'm sorry, the NaNoWriMo website isn't talking to me right now. Maybe try again later."

// PleaseWaitMessage acknowledges a command before a remote lookup.
const PleaseWaitMessage = "Please wait while I look that up..."

func newPrinter() *message.Printer {
	return message.NewPrinter(language.English)
}

// FormatCount renders an integer with thousands separators.
func FormatCount(value uint64) string {
	return newPrinter().Sprintf("%d", value)
}

// FormatAverage renders a float with thousands separators and 2 decimals.
func FormatAverage(value float64) string {
	return newPrinter().Sprintf("%.2f", value)
}

// FormatCurrency renders an amount with thousands separators and 2 decimals.
func FormatCurrency(amount decimal.Decimal) string {
	rounded := amount.Round(2)
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Abs()
	}

	whole := rounded.Truncate(0)
	fraction := rounded.Sub(whole).StringFixed(2)

	return sign + groupThousands(whole.String()) + strings.TrimPrefix(fraction, "0")
}

// groupThousands inserts commas into a run of decimal digits of any length.
func groupThousands(digits string) string {
	var builder strings.Builder
	builder.Grow(len(digits) + len(digits)/3)
	for index := range len(digits) {
		if index > 0 && (len(digits)-index)%3 == 0 {
			builder.WriteByte(',')
		}
		builder.WriteByte(digits[index])
	}

	return builder.String()
}

// RenderRegion renders one region line of the word-count report.
func RenderRegion(stat RegionStat) string {
	return newPrinter().Sprintf(
		"%s has %d writers averaging %.2f words for a total of %d words!",
		stat.Name,
		stat.Writers,
		stat.Average,
		stat.WordCount,
	)
}

// RenderDonation renders one region line of the donation report.
func RenderDonation(stat RegionStat) string {
	return stat.Name + " has donated $" + FormatCurrency(stat.Donations) + "!"
}

// RenderDonationSummary renders the donation running total.
func RenderDonationSummary(total decimal.Decimal) string {
	return "That's $" + FormatCurrency(total) + " donated. Commendable!"
}

// RenderUser renders one writer's progress.
func RenderUser(stat UserStat) string {
	if stat.HasToday && stat.Today > 0 {
		return newPrinter().Sprintf(
			"%s has written %d words today for a total of %d words!",
			stat.Name,
			stat.Today,
			stat.WordCount,
		)
	}

	return newPrinter().Sprintf("%s has written %d words!", stat.Name, stat.WordCount)
}

// RenderUnknownIdentity renders the reply for an identifier the API does not know.
func RenderUnknownIdentity(identifier string) string {
	return "Something went wrong, perhaps " + identifier + " isn't a NaNoWriMo username?"
}

// RenderGoal renders the par line for a word goal.
func RenderGoal(goal int64, par int64) string {
	return newPrinter().Sprintf("To reach %d words, you should be at %d words today", goal, par)
}
