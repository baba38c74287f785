package mutate

import "strings"

func schemeMutations(s *sequence, v string) {
	s.add(Mutation{Value: "1" + v, Operator: OpScheme, Description: "leading digit"})
	s.add(Mutation{Value: "-" + v, Operator: OpScheme, Description: "leading hyphen"})
	s.add(Mutation{Value: "." + v, Operator: OpScheme, Description: "leading dot"})
	s.add(Mutation{Value: "", Operator: OpScheme, Description: "empty scheme"})
}

func authorityMutations(s *sequence, v string) {
	host := v
	if i := strings.LastIndexByte(host, '@'); i >= 0 {
		host = host[i+1:]
	}
	if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.HasSuffix(host, "]") {
		host = host[:i]
	}

	s.add(Mutation{Value: "", Operator: OpAuthority, Description: "empty authority"})
	s.add(Mutation{Value: "user@", Operator: OpAuthority, Description: "userinfo without host"})
	s.add(Mutation{Value: host + ":port", Operator: OpAuthority, Description: "non-numeric port"})
	s.add(Mutation{Value: host + "::80", Operator: OpAuthority, Description: "double colon before port"})
	s.add(Mutation{Value: host + ":99999999999", Operator: OpAuthority, Description: "port overflow"})
	s.add(Mutation{Value: "." + host + ".", Operator: OpAuthority, Description: "leading and trailing dot"})
}

func traversalMutations(s *sequence, v string) {
	s.add(Mutation{Value: strings.ReplaceAll(v, "./", "../"), Operator: OpTraversal, Description: `"./" replaced with "../"`})
	s.add(Mutation{Value: strings.ReplaceAll(v, "..", "..."), Operator: OpTraversal, Description: `".." replaced with "..."`})
	s.add(Mutation{Value: strings.ReplaceAll(v, ".", "..."), Operator: OpTraversal, Description: `"." replaced with "..."`})
	s.add(Mutation{Value: strings.ReplaceAll(v, "/", "\\"), Operator: OpTraversal, Description: "separators flipped to backslash"})
	s.add(Mutation{Value: strings.ReplaceAll(v, "\\", "/"), Operator: OpTraversal, Description: "backslashes flipped to separators"})
	s.add(Mutation{Value: strings.ReplaceAll(v, "/", "//"), Operator: OpTraversal, Description: "separators doubled"})
	s.add(Mutation{Value: strings.ReplaceAll(v, "/", "/../../../../../../../../"), Operator: OpTraversal, Description: "deep dot-dot after every separator"})
	s.add(Mutation{Value: strings.TrimSuffix(v, "/") + "/../../../../../../../../etc/passwd", Operator: OpTraversal, Description: "deep dot-dot escape to /etc/passwd"})
}

func queryMutations(s *sequence, v string) {
	s.add(Mutation{Value: "?" + v, Operator: OpQuery, Description: `extra "?" delimiter`})
	s.add(Mutation{Value: "=value", Operator: OpQuery, Description: "parameter with empty name"})
	s.add(Mutation{Value: "name=", Operator: OpQuery, Description: "parameter with empty value"})
	s.add(Mutation{Value: v + "&", Operator: OpQuery, Description: `trailing "&"`})
	s.add(Mutation{Value: v + "&&x=1", Operator: OpQuery, Description: `doubled "&"`})
}
