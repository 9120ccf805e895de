package carriers

import "strings"

const (
	UPS     = "UPS"
	FedEx   = "FEDEX"
	USPS    = "USPS"
	DHL     = "DHL"
	Generic = "CARRIER"
	Unknown = "UNKNOWN"
)

// Detect определяет перевозчика по формату трек-номера. Правила проверяются
// по порядку, побеждает первое совпадение. Функция тотальная: на пустой или
// мусорный ввод возвращает сентинел, а не ошибку.
func Detect(trackingNumber string) string {
	if trackingNumber == "" {
		return Unknown
	}
	tn := strings.ToUpper(trackingNumber)

	if strings.HasPrefix(tn, "1Z") {
		return UPS
	}
	if len(tn) >= 12 && allDigits(tn) {
		// USPS-номера тоже цифровые, но длиннее и начинаются с 9.
		if len(tn) >= 16 && tn[0] == '9' {
			return USPS
		}
		return FedEx
	}
	if len(tn) == 13 && allAlpha(tn[:2]) && strings.HasSuffix(tn, "US") {
		return USPS
	}
	if (len(tn) == 10 || len(tn) == 11) && allDigits(tn) {
		return DHL
	}
	return Generic
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func allAlpha(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}
