package ibgib

import "strings"

const binPrefix = "bin."

// BinAddr is the address under which binary payloads are referenced
func BinAddr(binHash, binExt string) string {
	return Addr(binPrefix+binExt, binHash)
}

// IsBinAddr tells if an address refers to a binary payload
func IsBinAddr(addr string) bool {
	id, gib := ParseAddr(addr)
	return gib != "" && strings.HasPrefix(id, binPrefix)
}

// ParseBinAddr extracts the hash and extension of a binary address
func ParseBinAddr(addr string) (binHash, binExt string, ok bool) {
	if !IsBinAddr(addr) {
		return "", "", false
	}
	id, gib := ParseAddr(addr)
	return gib, strings.TrimPrefix(id, binPrefix), true
}

// BinFilename is the storage name of a binary payload
func BinFilename(binHash, binExt string) string {
	if binExt == "" {
		return binHash
	}
	return binHash + "." + binExt
}
