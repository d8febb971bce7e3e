package features

import (
	"Go2NetIDS/internal/engine/tracker"
	"strings"
)

// Feature indexes the fixed NSL-KDD feature schema.
type Feature int

const (
	Duration Feature = iota
	ProtocolType
	Service
	Flag
	SrcBytes
	DstBytes
	Land
	WrongFragment
	Urgent
	Hot
	NumFailedLogins
	LoggedIn
	NumCompromised
	RootShell
	SuAttempted
	NumRoot
	NumFileCreations
	NumShells
	NumAccessFiles
	NumOutboundCmds
	IsHostLogin
	IsGuestLogin
	Count
	SrvCount
	SerrorRate
	SrvSerrorRate
	RerrorRate
	SrvRerrorRate
	SameSrvRate
	DiffSrvRate
	SrvDiffHostRate
	DstHostCount
	DstHostSrvCount
	DstHostSameSrvRate
	DstHostDiffSrvRate
	DstHostSameSrcPortRate
	DstHostSrvDiffHostRate
	DstHostSerrorRate
	DstHostSrvSerrorRate
	DstHostRerrorRate
	DstHostSrvRerrorRate

	NumFeatures
)

var names = [NumFeatures]string{
	"duration", "protocol_type", "service", "flag", "src_bytes", "dst_bytes",
	"land", "wrong_fragment", "urgent", "hot", "num_failed_logins", "logged_in",
	"num_compromised", "root_shell", "su_attempted", "num_root",
	"num_file_creations", "num_shells", "num_access_files", "num_outbound_cmds",
	"is_host_login", "is_guest_login", "count", "srv_count", "serror_rate",
	"srv_serror_rate", "rerror_rate", "srv_rerror_rate", "same_srv_rate",
	"diff_srv_rate", "srv_diff_host_rate", "dst_host_count", "dst_host_srv_count",
	"dst_host_same_srv_rate", "dst_host_diff_srv_rate", "dst_host_same_src_port_rate",
	"dst_host_srv_diff_host_rate", "dst_host_serror_rate", "dst_host_srv_serror_rate",
	"dst_host_rerror_rate", "dst_host_srv_rerror_rate",
}

// Protocols is the protocol_type vocabulary, in label-encoding order.
var Protocols = []string{"icmp", "tcp", "udp"}

func (f Feature) String() string {
	if f < 0 || f >= NumFeatures {
		return "unknown"
	}
	return names[f]
}

// IsRate reports whether the feature is a ratio in [0,1].
func (f Feature) IsRate() bool {
	return strings.HasSuffix(names[f], "_rate")
}

// IsCategorical reports whether the feature holds a label-encoded string.
func (f Feature) IsCategorical() bool {
	return f == ProtocolType || f == Service || f == Flag
}

// Names returns the 41 feature names in schema order.
func Names() []string {
	return append([]string(nil), names[:]...)
}

// ByName resolves a schema feature name.
func ByName(name string) (Feature, bool) {
	for i, n := range names {
		if n == name {
			return Feature(i), true
		}
	}
	return 0, false
}

// Vector is the feature vector of one packet's connection. Categorical
// features keep their string in the matching field and their label encoding
// in Values.
type Vector struct {
	Values   [NumFeatures]float64
	Protocol string
	Service  string
	Flag     string
}

// Get returns the value of f.
func (v *Vector) Get(f Feature) float64 {
	return v.Values[f]
}

// Lookup resolves a name against the schema names and the one-hot names
// `protocol_type_<p>`, `service_<s>` and `flag_<f>`.
func (v *Vector) Lookup(name string) (float64, bool) {
	if f, ok := ByName(name); ok {
		return v.Values[f], true
	}
	for _, oh := range []struct {
		prefix, value string
	}{{"protocol_type_", v.Protocol}, {"service_", v.Service}, {"flag_", v.Flag}} {
		if rest, ok := strings.CutPrefix(name, oh.prefix); ok {
			if rest == oh.value {
				return 1, true
			}
			return 0, true
		}
	}
	return 0, false
}

// Field renders a feature for tabular output. Categorical features are
// written as their string value.
func (v *Vector) Field(f Feature) string {
	switch f {
	case ProtocolType:
		return v.Protocol
	case Service:
		return v.Service
	case Flag:
		return v.Flag
	}
	return formatFloat(v.Values[f])
}

func encode(vocab []string, value string) float64 {
	for i, s := range vocab {
		if s == value {
			return float64(i)
		}
	}
	return float64(len(vocab))
}

func encodeCategoricals(v *Vector) {
	v.Values[ProtocolType] = encode(Protocols, v.Protocol)
	v.Values[Service] = encode(tracker.Services, v.Service)
	v.Values[Flag] = encode(tracker.Flags, v.Flag)
}
