// Package catalog lists the endpoint templates of the quiz admin API and
// substitutes their positional "{}" placeholders.
package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Placeholder marks a positional path parameter in a template.
const Placeholder = "{}"

// Endpoint is a path template such as "/admin/quiz/{}/name".
type Endpoint string

const (
	AdminAuthRegister      Endpoint = "/admin/auth/register"
	AdminAuthLogin         Endpoint = "/admin/auth/login"
	AdminAuthLogout        Endpoint = "/admin/auth/logout"
	AdminUserDetails       Endpoint = "/admin/user/details"
	AdminUserPassword      Endpoint = "/admin/user/password"
	AdminQuizList          Endpoint = "/admin/quiz/list"
	AdminQuiz              Endpoint = "/admin/quiz"
	AdminQuizID            Endpoint = "/admin/quiz/{}"
	AdminQuizIDName        Endpoint = "/admin/quiz/{}/name"
	AdminQuizIDDescription Endpoint = "/admin/quiz/{}/description"
	AdminQuizTrash         Endpoint = "/admin/quiz/trash"
	AdminQuizIDRestore     Endpoint = "/admin/quiz/{}/restore"
	AdminQuizTrashEmpty    Endpoint = "/admin/quiz/trash/empty"
	AdminQuizIDTransfer    Endpoint = "/admin/quiz/{}/transfer"
	Clear                  Endpoint = "/clear"
)

var byName = map[string]Endpoint{
	"adminAuthRegister":      AdminAuthRegister,
	"adminAuthLogin":         AdminAuthLogin,
	"adminAuthLogout":        AdminAuthLogout,
	"adminUserDetails":       AdminUserDetails,
	"adminUserPassword":      AdminUserPassword,
	"adminQuizList":          AdminQuizList,
	"adminQuiz":              AdminQuiz,
	"adminQuizId":            AdminQuizID,
	"adminQuizIdName":        AdminQuizIDName,
	"adminQuizIdDescription": AdminQuizIDDescription,
	"adminQuizTrash":         AdminQuizTrash,
	"adminQuizIdRestore":     AdminQuizIDRestore,
	"adminQuizTrashEmpty":    AdminQuizTrashEmpty,
	"adminQuizIdTransfer":    AdminQuizIDTransfer,

	// not part of the public API; resets backend state between runs
	"clear": Clear,
}

// Names returns the catalog names in ascending order.
func Names() []string {
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the template registered under name.
func Lookup(name string) (Endpoint, bool) {
	e, ok := byName[name]
	return e, ok
}

// Resolve accepts either a catalog name or a literal path template.
func Resolve(nameOrPath string) (Endpoint, error) {
	if strings.HasPrefix(nameOrPath, "/") {
		return Endpoint(nameOrPath), nil
	}
	if e, ok := byName[nameOrPath]; ok {
		return e, nil
	}
	return "", fmt.Errorf("unknown endpoint %q", nameOrPath)
}

// Placeholders counts the positional parameters of e.
func (e Endpoint) Placeholders() int {
	return strings.Count(string(e), Placeholder)
}

// Expand substitutes args into the placeholders of e in order.
// The number of args must equal the number of placeholders.
func (e Endpoint) Expand(args ...any) (string, error) {
	if n := e.Placeholders(); n != len(args) {
		return "", fmt.Errorf("endpoint %s takes %d argument(s), got %d", e, n, len(args))
	}

	var sb strings.Builder
	rest := string(e)
	for _, a := range args {
		i := strings.Index(rest, Placeholder)
		sb.WriteString(rest[:i])
		fmt.Fprint(&sb, a)
		rest = rest[i+len(Placeholder):]
	}
	sb.WriteString(rest)
	return sb.String(), nil
}
