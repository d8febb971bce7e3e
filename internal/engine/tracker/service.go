package tracker

import "Go2NetIDS/internal/model"

// Services is the NSL-KDD service vocabulary, in the order used for label
// encoding.
var Services = []string{
	"aol", "auth", "bgp", "courier", "csnet_ns", "ctf", "daytime", "discard",
	"domain", "domain_u", "echo", "eco_i", "ecr_i", "efs", "exec", "finger",
	"ftp", "ftp_data", "gopher", "harvest", "hostnames", "http", "http_2784",
	"http_443", "http_8001", "imap4", "IRC", "iso_tsap", "klogin", "kshell",
	"ldap", "link", "login", "mtp", "name", "netbios_dgm", "netbios_ns",
	"netbios_ssn", "netstat", "nnsp", "nntp", "ntp_u", "other", "pm_dump",
	"pop_2", "pop_3", "printer", "private", "red_i", "remote_job", "rje",
	"shell", "smtp", "sql_net", "ssh", "sunrpc", "supdup", "systat", "telnet",
	"tftp_u", "tim_i", "time", "urh_i", "urp_i", "uucp", "uucp_path", "vmnet",
	"whois", "X11", "Z39_50",
}

var tcpServices = map[uint16]string{
	5190: "aol", 113: "auth", 179: "bgp", 530: "courier", 105: "csnet_ns",
	84: "ctf", 13: "daytime", 9: "discard", 53: "domain", 7: "echo",
	520: "efs", 512: "exec", 79: "finger", 21: "ftp", 20: "ftp_data",
	70: "gopher", 101: "hostnames", 80: "http", 2784: "http_2784",
	443: "http_443", 8001: "http_8001", 143: "imap4", 194: "IRC", 6667: "IRC",
	102: "iso_tsap", 543: "klogin", 544: "kshell", 389: "ldap", 87: "link",
	513: "login", 57: "mtp", 42: "name", 139: "netbios_ssn", 15: "netstat",
	433: "nnsp", 119: "nntp", 109: "pop_2", 110: "pop_3", 515: "printer",
	71: "remote_job", 77: "rje", 514: "shell", 25: "smtp", 150: "sql_net",
	22: "ssh", 111: "sunrpc", 95: "supdup", 11: "systat", 23: "telnet",
	37: "time", 540: "uucp", 117: "uucp_path", 175: "vmnet", 43: "whois",
	210: "Z39_50",
}

var udpServices = map[uint16]string{
	53: "domain_u", 123: "ntp_u", 69: "tftp_u", 137: "netbios_ns",
	138: "netbios_dgm", 111: "sunrpc", 7: "echo", 9: "discard", 13: "daytime",
	37: "time",
}

const firstUnprivilegedPort = 1024

// ResolveService infers the logical service of a flow from its protocol and
// destination port, or from the ICMP type.
func ResolveService(proto uint8, dstPort uint16, icmpType uint8) string {
	switch proto {
	case model.ProtoTCP:
		if s, ok := tcpServices[dstPort]; ok {
			return s
		}
		if dstPort >= 6000 && dstPort <= 6063 {
			return "X11"
		}
	case model.ProtoUDP:
		if s, ok := udpServices[dstPort]; ok {
			return s
		}
	case model.ProtoICMP:
		switch icmpType {
		case 0:
			return "ecr_i"
		case 8:
			return "eco_i"
		case 3:
			return "urp_i"
		case 5:
			return "red_i"
		case 13, 14:
			return "tim_i"
		case 11:
			return "urh_i"
		}
		return "other"
	case model.ProtoICMPv6:
		switch icmpType {
		case 129:
			return "ecr_i"
		case 128:
			return "eco_i"
		case 1:
			return "urp_i"
		}
		return "other"
	default:
		return "other"
	}
	if dstPort >= firstUnprivilegedPort {
		return "private"
	}
	return "other"
}
