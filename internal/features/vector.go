// Package features derives the per-sender behavioral vector the classifier
// consumes, and caches the latest vector for each sender.
package features

// FieldNames is the ordered contract between the extractor and the
// classifier. The model file must list exactly these names in this order.
var FieldNames = []string{
	"total_trx",
	"total_beneficiaries",
	"total_paid_out_trx",
	"avg_top_05_daily_trx",
	"std_top_05_daily_trx",
	"sd_top_05_daily_trx",
	"avg_top_volumes",
	"std_top_volumes",
	"sd_top_volumes",
	"date_differences_max",
	"date_differences_avg",
	"length_of_seq",
	"avg_top_05_atv",
	"avg_bottom_atv",
	"sd_atv",
	"paid_percentage",
	"sd_trx_diff",
	"sd_trx_vol",
}

// Width is the number of features in a Vector.
const Width = 18

// Vector is the fixed-width feature set for one sender. std_* fields are
// population standard deviations; sd_* fields are sample deviations.
type Vector struct {
	TotalTrx           float64 `json:"total_trx"`
	TotalBeneficiaries float64 `json:"total_beneficiaries"`
	TotalPaidOutTrx    float64 `json:"total_paid_out_trx"`
	AvgTop05DailyTrx   float64 `json:"avg_top_05_daily_trx"`
	StdTop05DailyTrx   float64 `json:"std_top_05_daily_trx"`
	SdTop05DailyTrx    float64 `json:"sd_top_05_daily_trx"`
	AvgTopVolumes      float64 `json:"avg_top_volumes"`
	StdTopVolumes      float64 `json:"std_top_volumes"`
	SdTopVolumes       float64 `json:"sd_top_volumes"`
	DateDifferencesMax float64 `json:"date_differences_max"`
	DateDifferencesAvg float64 `json:"date_differences_avg"`
	LengthOfSeq        float64 `json:"length_of_seq"`
	AvgTop05ATV        float64 `json:"avg_top_05_atv"`
	AvgBottomATV       float64 `json:"avg_bottom_atv"`
	SdATV              float64 `json:"sd_atv"`
	PaidPercentage     float64 `json:"paid_percentage"`
	SdTrxDiff          float64 `json:"sd_trx_diff"`
	SdTrxVol           float64 `json:"sd_trx_vol"`
}

// Array returns the vector in FieldNames order. This is the only way a
// vector reaches the classifier.
func (v Vector) Array() [Width]float64 {
	return [Width]float64{
		v.TotalTrx,
		v.TotalBeneficiaries,
		v.TotalPaidOutTrx,
		v.AvgTop05DailyTrx,
		v.StdTop05DailyTrx,
		v.SdTop05DailyTrx,
		v.AvgTopVolumes,
		v.StdTopVolumes,
		v.SdTopVolumes,
		v.DateDifferencesMax,
		v.DateDifferencesAvg,
		v.LengthOfSeq,
		v.AvgTop05ATV,
		v.AvgBottomATV,
		v.SdATV,
		v.PaidPercentage,
		v.SdTrxDiff,
		v.SdTrxVol,
	}
}

// FromArray is the inverse of Array.
func FromArray(a [Width]float64) Vector {
	return Vector{
		TotalTrx:           a[0],
		TotalBeneficiaries: a[1],
		TotalPaidOutTrx:    a[2],
		AvgTop05DailyTrx:   a[3],
		StdTop05DailyTrx:   a[4],
		SdTop05DailyTrx:    a[5],
		AvgTopVolumes:      a[6],
		StdTopVolumes:      a[7],
		SdTopVolumes:       a[8],
		DateDifferencesMax: a[9],
		DateDifferencesAvg: a[10],
		LengthOfSeq:        a[11],
		AvgTop05ATV:        a[12],
		AvgBottomATV:       a[13],
		SdATV:              a[14],
		PaidPercentage:     a[15],
		SdTrxDiff:          a[16],
		SdTrxVol:           a[17],
	}
}

// Map returns the vector keyed by feature name.
func (v Vector) Map() map[string]float64 {
	arr := v.Array()
	m := make(map[string]float64, Width)
	for i, name := range FieldNames {
		m[name] = arr[i]
	}
	return m
}

// ColdStart is the vector for a sender whose only transaction is the one
// being scored.
func ColdStart(amount float64) Vector {
	return Vector{
		TotalTrx:           1,
		TotalBeneficiaries: 1,
		AvgTop05DailyTrx:   1,
		LengthOfSeq:        1,
		AvgTopVolumes:      amount,
		AvgTop05ATV:        amount,
		AvgBottomATV:       amount,
	}
}
