// Package response classifies BCR-ABL1 IS% results against the ELN 2020
// molecular milestones at 3, 6 and 12 months.
//
// Every function here is pure: the outcome depends only on the IS% value and
// the whole number of months since diagnosis.
package response

import (
	"math"
	"time"
)

// TestTypeBCRABL1 is the only test type that is classified. Other lab
// results are stored but never produce a classification.
const TestTypeBCRABL1 = "BCR-ABL1 PCR"

// IS% thresholds for the 3/6/12 month checkpoints.
const (
	threshold3Months  = 10.0
	threshold6Months  = 1.0
	threshold12Months = 0.1
)

type ColorBand string

const (
	BandGreen      ColorBand = "GREEN"
	BandLightGreen ColorBand = "LIGHT_GREEN"
	BandYellow     ColorBand = "YELLOW"
	BandOrange     ColorBand = "ORANGE"
	BandRed        ColorBand = "RED"
)

type ELNStatus string

const (
	ELNNotAssessed ELNStatus = "NOT_ASSESSED"
	ELNOptimal     ELNStatus = "OPTIMAL"
	ELNWarning     ELNStatus = "WARNING"
	ELNFailure     ELNStatus = "FAILURE"
)

// Classification is derived on demand and never persisted.
type Classification struct {
	MonthsSinceDiagnosis    int       `json:"months_since_diagnosis"`
	ColorBand               ColorBand `json:"color_band"`
	ELNStatus               ELNStatus `json:"eln_status"`
	MutationTestRecommended bool      `json:"mutation_test_recommended"`
}

// MonthsSinceDiagnosis returns round(days / 30) between the two calendar
// dates. Times of day are ignored. The result is negative when the test
// predates the diagnosis; no clamping is done.
func MonthsSinceDiagnosis(testDate, diagnosisDate time.Time) int {
	days := civilDate(testDate).Sub(civilDate(diagnosisDate)).Hours() / 24
	return int(math.Round(days / 30))
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ClassifyColorBand maps a result onto the clinic's five-colour scale.
// Rules are evaluated top to bottom and the first match wins.
func ClassifyColorBand(value float64, months int) ColorBand {
	switch {
	case value > threshold3Months && months <= 3:
		return BandYellow
	case value > threshold3Months:
		return BandRed
	case value > threshold6Months && months >= 12:
		return BandRed
	case value > threshold6Months:
		return BandGreen
	case value > threshold12Months && months >= 12:
		return BandOrange
	case value > threshold12Months:
		return BandLightGreen
	default:
		return BandGreen
	}
}

// ClassifyELNStatus applies the ELN 2020 milestone table. The 3 month
// checkpoint has no warning tier.
func ClassifyELNStatus(value float64, months int) ELNStatus {
	switch {
	case months < 3:
		return ELNNotAssessed
	case months < 6:
		if value <= threshold3Months {
			return ELNOptimal
		}
		return ELNFailure
	case months < 12:
		return tiered(value, threshold6Months, threshold3Months)
	default:
		return tiered(value, threshold12Months, threshold6Months)
	}
}

func tiered(value, optimal, warning float64) ELNStatus {
	switch {
	case value <= optimal:
		return ELNOptimal
	case value <= warning:
		return ELNWarning
	default:
		return ELNFailure
	}
}

// MutationTestRecommended reports whether a BCR::ABL1 kinase-domain mutation
// assay is indicated, i.e. the value misses the optimal threshold of the
// current checkpoint.
func MutationTestRecommended(value float64, months int) bool {
	switch {
	case months < 3:
		return false
	case months < 6:
		return value > threshold3Months
	case months < 12:
		return value > threshold6Months
	default:
		return value > threshold12Months
	}
}

// Classify computes every derived field for one result.
func Classify(value float64, testDate, diagnosisDate time.Time) Classification {
	months := MonthsSinceDiagnosis(testDate, diagnosisDate)
	return ClassifyMonths(value, months)
}

// ClassifyMonths is Classify for callers that already know the month count.
func ClassifyMonths(value float64, months int) Classification {
	return Classification{
		MonthsSinceDiagnosis:    months,
		ColorBand:               ClassifyColorBand(value, months),
		ELNStatus:               ClassifyELNStatus(value, months),
		MutationTestRecommended: MutationTestRecommended(value, months),
	}
}
