package tracker

import "Go2NetIDS/internal/model"

// Flags is the KDD connection-status vocabulary, in label-encoding order.
var Flags = []string{"OTH", "REJ", "RSTO", "RSTOS0", "RSTR", "RSTRH", "S0", "S1", "S2", "S3", "SF", "SH", "SHR"}

type handshake uint16

const (
	origSYN handshake = 1 << iota
	origACK
	origFIN
	origRST
	respSYNACK
	respACK
	respFIN
	respRST
	established
)

// advance folds one segment into the handshake state.
func (h handshake) advance(f model.TCPFlags, fromOriginator bool) handshake {
	if fromOriginator {
		if f.Has(model.FlagSYN) && !f.Has(model.FlagACK) {
			h |= origSYN
		}
		if f.Has(model.FlagACK) {
			h |= origACK
			if h&respSYNACK != 0 {
				h |= established
			}
		}
		if f.Has(model.FlagFIN) {
			h |= origFIN
		}
		if f.Has(model.FlagRST) {
			h |= origRST
		}
		return h
	}
	if f.Has(model.FlagSYN | model.FlagACK) {
		h |= respSYNACK
	}
	if f.Has(model.FlagACK) {
		h |= respACK
	}
	if f.Has(model.FlagFIN) {
		h |= respFIN
	}
	if f.Has(model.FlagRST) {
		h |= respRST
	}
	return h
}

// kddFlag summarises the state as a KDD flag. Flows first seen mid-stream
// with ACK traffic are treated as established connections.
func (h handshake) kddFlag() string {
	has := func(b handshake) bool { return h&b != 0 }
	switch {
	case has(origSYN) && has(respSYNACK):
		switch {
		case has(origRST):
			return "RSTO"
		case has(respRST):
			return "RSTR"
		case has(established):
			return "SF"
		default:
			return "S1"
		}
	case has(origSYN):
		switch {
		case has(respRST):
			return "REJ"
		case has(origRST):
			return "RSTOS0"
		case has(origFIN):
			return "SH"
		default:
			return "S0"
		}
	case has(respSYNACK):
		switch {
		case has(respRST):
			return "RSTRH"
		case has(respFIN):
			return "SHR"
		default:
			return "OTH"
		}
	case has(origACK) || has(respACK):
		switch {
		case has(origRST):
			return "RSTO"
		case has(respRST):
			return "RSTR"
		default:
			return "SF"
		}
	default:
		return "OTH"
	}
}

// IsSYNError reports flags that count towards the serror rates.
func IsSYNError(flag string) bool {
	switch flag {
	case "S0", "S1", "S2", "S3":
		return true
	}
	return false
}

// IsREJError reports flags that count towards the rerror rates.
func IsREJError(flag string) bool {
	return flag == "REJ"
}
