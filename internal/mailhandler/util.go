package mailhandler

import "strings"

func joinAddresses(addrs []string) string {
	return strings.Join(addrs, ", ")
}

func domainOf(addr string) string {
	if _, domain, ok := strings.Cut(addr, "@"); ok && domain != "" {
		return domain
	}
	return "localhost"
}
