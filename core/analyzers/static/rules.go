package static

import (
	"github.com/guardrail-hq/guardrail/core/violations"
)

// rule is a compact built-in rule definition. Patterns are compiled
// case-insensitively at analyzer construction.
type rule struct {
	id       string
	name     string
	severity violations.Severity
	pattern  string
	mappings []string
}

// ruleTable groups rules that share a message prefix, a stock explanation,
// and a canned fix suggestion.
type ruleTable struct {
	rules       []rule
	message     string
	explanation string
	fix         string
}

// secretRules detect hardcoded credentials of all shapes. All critical.
var secretRules = ruleTable{
	message: "Hardcoded secret detected",
	explanation: "This code contains a hardcoded secret which is a critical security risk. " +
		"Secrets should be stored in environment variables or secret management systems.",
	fix: "Use environment variables or a secrets manager (e.g., AWS Secrets Manager, HashiCorp Vault)",
	rules: []rule{
		{
			id: "SEC001", name: "Hardcoded API Key", severity: violations.SeverityCritical,
			pattern:  `(?i)(api[_-]?key|apikey)\s*[=:]\s*["']([^"']{20,})["']`,
			mappings: []string{"CWE-798", "OWASP-A07:2021"},
		},
		{
			id: "SEC002", name: "Hardcoded Password", severity: violations.SeverityCritical,
			pattern:  `(?i)(password|passwd|pwd)\s*[=:]\s*["']([^"']+)["']`,
			mappings: []string{"CWE-798", "OWASP-A07:2021"},
		},
		{
			id: "SEC003", name: "Hardcoded Secret", severity: violations.SeverityCritical,
			pattern:  `(?i)(secret|secret[_-]?key)\s*[=:]\s*["']([^"']{20,})["']`,
			mappings: []string{"CWE-798", "OWASP-A07:2021"},
		},
		{
			id: "SEC004", name: "Hardcoded AWS Credentials", severity: violations.SeverityCritical,
			pattern:  `(?i)(aws[_-]?access[_-]?key[_-]?id|aws[_-]?secret[_-]?access[_-]?key)\s*[=:]\s*["']([^"']+)["']`,
			mappings: []string{"CWE-798", "OWASP-A07:2021"},
		},
		{
			id: "SEC005", name: "Stripe Live Secret Key", severity: violations.SeverityCritical,
			pattern:  `(?i)sk_live_[0-9a-zA-Z]{24,}`,
			mappings: []string{"CWE-798"},
		},
		{
			id: "SEC006", name: "Hardcoded Token", severity: violations.SeverityCritical,
			pattern:  `(?i)(token|bearer[_-]?token)\s*[=:]\s*["']([^"']{20,})["']`,
			mappings: []string{"CWE-798", "OWASP-A07:2021"},
		},
		{
			id: "SEC007", name: "Hardcoded Private Key", severity: violations.SeverityCritical,
			pattern:  `(?i)(private[_-]?key|privatekey)\s*[=:]\s*["']([^"']{20,})["']`,
			mappings: []string{"CWE-798", "OWASP-A07:2021"},
		},
		{
			id: "SEC008", name: "Hardcoded Private Key (PEM Format)", severity: violations.SeverityCritical,
			pattern:  `(?i)-----BEGIN\s+(RSA\s+)?PRIVATE\s+KEY-----`,
			mappings: []string{"CWE-798", "OWASP-A07:2021"},
		},
		{
			id: "SEC009", name: "Hardcoded Database Credentials", severity: violations.SeverityCritical,
			pattern:  `(?i)(database[_-]?url|db[_-]?password|connection[_-]?string)\s*[=:]\s*["']([^"']*://[^"']+)["']`,
			mappings: []string{"CWE-798", "OWASP-A07:2021"},
		},
	},
}

// sqlInjectionRules detect query construction from unparameterized input.
var sqlInjectionRules = ruleTable{
	message: "Potential SQL injection vulnerability detected",
	explanation: "SQL queries constructed using string concatenation or formatting are vulnerable to " +
		"SQL injection attacks. Use parameterized queries or ORM methods instead.",
	fix: "Use parameterized queries: cursor.execute('SELECT * FROM users WHERE id = %s', (user_id,))",
	rules: []rule{
		{
			id: "SEC101", name: "Potential SQL Injection (String Concatenation)", severity: violations.SeverityHigh,
			pattern:  `(?i)(execute|query|exec)\s*\([^)]*\+.*["']`,
			mappings: []string{"CWE-89", "OWASP-A03:2021"},
		},
		{
			id: "SEC102", name: "Potential SQL Injection (F-string)", severity: violations.SeverityHigh,
			pattern:  `(?i)(execute|query|exec)\s*\([^)]*f["']`,
			mappings: []string{"CWE-89", "OWASP-A03:2021"},
		},
		{
			id: "SEC103", name: "Potential SQL Injection (String Format)", severity: violations.SeverityHigh,
			pattern:  `(?i)(execute|query|exec)\s*\([^)]*\.format\(`,
			mappings: []string{"CWE-89", "OWASP-A03:2021"},
		},
	},
}

// unsafeOperationRules detect dynamic execution, unsafe deserialization, and
// path traversal.
var unsafeOperationRules = ruleTable{
	message: "Unsafe operation detected",
	explanation: "This operation can lead to code injection or data exposure. " +
		"Only use it when absolutely necessary and with strict input validation.",
	fix: "Use safer alternatives or implement strict input validation and sandboxing",
	rules: []rule{
		{
			id: "SEC201", name: "Use of eval()", severity: violations.SeverityCritical,
			pattern:  `(?i)\beval\s*\(`,
			mappings: []string{"CWE-95", "OWASP-A03:2021"},
		},
		{
			id: "SEC202", name: "Use of exec()", severity: violations.SeverityCritical,
			pattern:  `(?i)\bexec\s*\(`,
			mappings: []string{"CWE-95", "OWASP-A03:2021"},
		},
		{
			id: "SEC203", name: "Unsafe Shell Execution", severity: violations.SeverityHigh,
			pattern:  `(?i)subprocess\.(call|run|Popen)\s*\([^)]*shell\s*=\s*True`,
			mappings: []string{"CWE-78", "OWASP-A03:2021"},
		},
		{
			id: "SEC204", name: "Unsafe Deserialization", severity: violations.SeverityHigh,
			pattern:  `(?i)pickle\.(loads?|dumps?)\s*\(`,
			mappings: []string{"CWE-502", "OWASP-A08:2021"},
		},
		{
			id: "SEC205", name: "Path Traversal Risk", severity: violations.SeverityHigh,
			pattern:  `(?i)open\s*\([^)]*\.\./`,
			mappings: []string{"CWE-22", "OWASP-A01:2021"},
		},
	},
}
