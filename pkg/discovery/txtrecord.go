package discovery

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/deskflow/deskflow-go/pkg/cert"
	"github.com/deskflow/deskflow-go/pkg/transport"
	"github.com/deskflow/deskflow-go/pkg/version"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeServerTXT creates TXT records for a server advertisement.
func EncodeServerTXT(info *ServerInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	v := info.Version
	if v == "" {
		v = version.Current
	}
	txt[TXTKeyVersion] = v
	txt[TXTKeySecurityLevel] = strconv.FormatUint(uint64(info.Level), 10)

	if !info.Fingerprint.IsZero() {
		txt[TXTKeyFingerprint] = info.Fingerprint.Hex()
	}

	return txt
}

// DecodeServerTXT parses TXT records from a server advertisement.
func DecodeServerTXT(txt TXTRecordMap) (*ServerInfo, error) {
	info := &ServerInfo{}

	// Parse version (required)
	v, ok := txt[TXTKeyVersion]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}
	if _, err := version.Parse(v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTXTRecord, err)
	}
	info.Version = v

	// Parse security level (required)
	slStr, ok := txt[TXTKeySecurityLevel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeySecurityLevel)
	}
	sl, err := strconv.ParseUint(slStr, 10, 8)
	if err != nil || sl > uint64(transport.SecurityPeerAuth) {
		return nil, fmt.Errorf("%w: security level %q", ErrInvalidTXTRecord, slStr)
	}
	info.Level = transport.SecurityLevel(sl)

	// Parse fingerprint (required unless plaintext)
	fpStr, ok := txt[TXTKeyFingerprint]
	if ok {
		fp, err := cert.ParseFingerprint(fpStr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTXTRecord, err)
		}
		info.Fingerprint = fp
	} else if info.Level.Secure() {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyFingerprint)
	}

	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to a slice of "key=value"
// strings, the format mDNS libraries expect.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a
// TXTRecordMap. A key without '=' becomes a boolean flag with an empty
// value.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			txt[parts[0]] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if a screen name is usable as an mDNS
// instance name.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidInstanceName)
	}
	if len(name) > MaxInstanceNameLen {
		return fmt.Errorf("%w: exceeds %d bytes", ErrInvalidInstanceName, MaxInstanceNameLen)
	}
	return nil
}
