package token

import (
	"math"
	"math/big"
	"time"
)

// Counter is a per-token call counter that saturates instead of wrapping.
type Counter uint8

// Inc increments the counter, stopping at the uint8 ceiling.
func (c *Counter) Inc() {
	if *c < math.MaxUint8 {
		*c++
	}
}

// BucketKind selects between the time and volume bucket arrays.
type BucketKind int

const (
	TimeBucket BucketKind = iota
	VolumeBucket
)

func (k BucketKind) String() string {
	if k == VolumeBucket {
		return "volume"
	}
	return "time"
}

// Bucket is one staged exit of a position.
// Time buckets trigger After the purchase, volume buckets once the quoted
// position value reaches ValueMultiple times the ETH spent.
type Bucket struct {
	After         time.Duration `json:"after,omitempty"`
	ValueMultiple float64       `json:"value_multiple,omitempty"`
	Percent       float64       `json:"percent"`
	Sold          *big.Int      `json:"sold"`
	Filled        bool          `json:"filled"`
}

// Buckets returns the bucket array for kind.
func (t *Token) Buckets(kind BucketKind) []Bucket {
	if kind == VolumeBucket {
		return t.VolumeBuckets
	}
	return t.TimeBuckets
}

// AllBucketsFilled reports whether every configured bucket has been sold.
func (t *Token) AllBucketsFilled() bool {
	for _, b := range t.TimeBuckets {
		if !b.Filled {
			return false
		}
	}
	for _, b := range t.VolumeBuckets {
		if !b.Filled {
			return false
		}
	}
	return true
}

// TotalSold sums the token amounts recorded across all buckets.
func (t *Token) TotalSold() *big.Int {
	total := new(big.Int)
	for _, b := range t.TimeBuckets {
		if b.Sold != nil {
			total.Add(total, b.Sold)
		}
	}
	for _, b := range t.VolumeBuckets {
		if b.Sold != nil {
			total.Add(total, b.Sold)
		}
	}
	return total
}

func cloneBuckets(in []Bucket) []Bucket {
	if in == nil {
		return nil
	}
	out := make([]Bucket, len(in))
	for i, b := range in {
		out[i] = b
		if b.Sold != nil {
			out[i].Sold = new(big.Int).Set(b.Sold)
		}
	}
	return out
}
