package appointment

const (
	MinRating = 1
	MaxRating = 5
)

func validRating(r int) bool {
	return r >= MinRating && r <= MaxRating
}

// NextAggregate folds a submitted rating into a doctor's aggregate. Both the
// aggregate and the result are in tenths (4.5 is 45); the submitted rating is
// a whole star count. An aggregate of zero means "not yet rated" and takes
// the submitted value outright. Otherwise the result is the mean of the two,
// rounded half-up to one decimal.
func NextAggregate(prevTenths, submitted int) int {
	if prevTenths == 0 {
		return submitted * 10
	}
	return (prevTenths + submitted*10 + 1) / 2
}
