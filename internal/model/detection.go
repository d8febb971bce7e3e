package model

import "time"

// Detection is an anomalous packet reported by the detector.
type Detection struct {
	Timestamp  time.Time
	FiveTuple  FiveTuple
	Protocol   string
	Service    string
	Flag       string
	Confidence float64
	// Features holds the non-zero named feature values of the vector.
	Features map[string]float64
	Packet   string
}
