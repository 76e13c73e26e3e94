package frontend

// Parse scans and parses content into an unresolved Unit. Syntax errors are
// reported to the listener and recovery continues at the next plausible
// declaration boundary, so a Unit is always produced.
func Parse(content string, listener ErrorListener) *Unit {
	p := &parser{
		tokens:   Scan(content, listener),
		listener: listener,
		unit:     &Unit{LineInfo: NewLineInfo(content)},
	}
	p.parseUnit()
	return p.unit
}

type parser struct {
	tokens   []Token
	pos      int
	listener ErrorListener
	unit     *Unit
}

func (p *parser) cur() Token  { return p.tokens[p.pos] }
func (p *parser) next() Token { t := p.tokens[p.pos]; p.advance(); return t }

func (p *parser) advance() {
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
}

func (p *parser) at(kind TokenKind, text string) bool {
	t := p.cur()
	return t.Kind == kind && t.Text == text
}

func (p *parser) eat(kind TokenKind, text string) bool {
	if p.at(kind, text) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expectPunct(text string) {
	if !p.eat(TokenPunct, text) {
		p.listener.Error(p.cur().Offset, "expected '"+text+"'")
	}
}

func (p *parser) ref(name string, offset int) {
	p.unit.References = append(p.unit.References, Ref{Name: name, Offset: offset})
}

func (p *parser) parseUnit() {
	for p.cur().Kind == TokenKeyword {
		switch p.cur().Text {
		case "import", "export", "part":
			p.parseDirective()
			continue
		}
		break
	}
	for p.cur().Kind != TokenEOF {
		p.parseDecl()
	}
}

func (p *parser) parseDirective() {
	kw := p.next()
	var kind DirectiveKind
	switch kw.Text {
	case "import":
		kind = ImportDirective
	case "export":
		kind = ExportDirective
	case "part":
		kind = PartDirective
	}
	if p.cur().Kind != TokenString {
		p.listener.Error(p.cur().Offset, "expected URI string after '"+kw.Text+"'")
		p.unit.Directives = append(p.unit.Directives, Directive{Kind: kind, Offset: kw.Offset})
		p.skipToSemicolon()
		return
	}
	uri := p.next()
	p.unit.Directives = append(p.unit.Directives, Directive{Kind: kind, URI: uri.Text, Offset: kw.Offset})
	p.expectPunct(";")
}

func (p *parser) parseDecl() {
	t := p.cur()
	if t.Kind != TokenKeyword {
		p.listener.Error(t.Offset, "expected declaration")
		p.advance()
		return
	}
	switch t.Text {
	case "class":
		p.parseClass()
	case "func":
		p.unit.Decls = append(p.unit.Decls, p.parseFunc(nil))
	case "let":
		p.parseLet()
	case "import", "export", "part":
		p.listener.Error(t.Offset, "directive must precede declarations")
		p.advance()
		p.skipToSemicolon()
	default:
		p.listener.Error(t.Offset, "unexpected '"+t.Text+"'")
		p.advance()
	}
}

func (p *parser) parseClass() {
	kw := p.next() // class
	decl := &Decl{Kind: ClassDecl, Offset: kw.Offset}
	if p.cur().Kind != TokenIdent {
		p.listener.Error(p.cur().Offset, "expected class name")
	} else {
		decl.Name = p.next().Text
	}
	if p.eat(TokenKeyword, "extends") {
		if p.cur().Kind != TokenIdent {
			p.listener.Error(p.cur().Offset, "expected superclass name")
		} else {
			sup := p.next()
			decl.Extends = sup.Text
			p.ref(sup.Text, sup.Offset)
		}
	}
	p.expectPunct("{")
	for p.cur().Kind != TokenEOF && !p.at(TokenPunct, "}") {
		p.parseMember(decl)
	}
	p.expectPunct("}")
	p.unit.Decls = append(p.unit.Decls, decl)
}

func (p *parser) parseMember(decl *Decl) {
	t := p.cur()
	switch {
	case t.Kind == TokenKeyword && t.Text == "func":
		m := p.parseFunc(decl)
		decl.Members = append(decl.Members, Member{
			Name: m.Name, Kind: "method", Type: m.Type, Params: m.Params,
		})
	case t.Kind == TokenIdent:
		name := p.next()
		p.expectPunct(":")
		typ := p.parseType()
		if p.eat(TokenPunct, "=") {
			p.parseExprUntilSemicolon()
		}
		p.expectPunct(";")
		decl.Members = append(decl.Members, Member{Name: name.Text, Kind: "field", Type: typ})
	default:
		p.listener.Error(t.Offset, "expected class member")
		p.advance()
	}
}

// parseFunc parses a function or method. The returned Decl is appended to
// the unit by the caller for top-level functions; for methods only the
// shape fields are used.
func (p *parser) parseFunc(owner *Decl) *Decl {
	kw := p.next() // func
	decl := &Decl{Kind: FuncDecl, Offset: kw.Offset}
	if p.cur().Kind != TokenIdent {
		p.listener.Error(p.cur().Offset, "expected function name")
	} else {
		decl.Name = p.next().Text
	}
	locals := map[string]bool{}
	p.expectPunct("(")
	for p.cur().Kind != TokenEOF && !p.at(TokenPunct, ")") {
		if p.cur().Kind != TokenIdent {
			p.listener.Error(p.cur().Offset, "expected parameter name")
			p.advance()
			continue
		}
		pname := p.next().Text
		locals[pname] = true
		p.expectPunct(":")
		ptype := p.parseType()
		decl.Params = append(decl.Params, Param{Name: pname, Type: ptype})
		if !p.eat(TokenPunct, ",") {
			break
		}
	}
	p.expectPunct(")")
	if p.eat(TokenPunct, ":") {
		decl.Type = p.parseType()
	}
	p.parseBody(locals)
	_ = owner
	return decl
}

func (p *parser) parseLet() {
	kw := p.next() // let
	decl := &Decl{Kind: LetDecl, Offset: kw.Offset}
	if p.cur().Kind != TokenIdent {
		p.listener.Error(p.cur().Offset, "expected variable name")
	} else {
		decl.Name = p.next().Text
	}
	if p.eat(TokenPunct, ":") {
		decl.Type = p.parseType()
	}
	if p.eat(TokenPunct, "=") {
		p.parseExprUntilSemicolon()
	}
	p.expectPunct(";")
	p.unit.Decls = append(p.unit.Decls, decl)
}

// parseType reads a single type name and records it as a reference.
func (p *parser) parseType() string {
	if p.cur().Kind != TokenIdent {
		p.listener.Error(p.cur().Offset, "expected type name")
		return ""
	}
	t := p.next()
	p.ref(t.Text, t.Offset)
	return t.Text
}

// parseBody consumes a balanced block, collecting call references: an
// identifier directly followed by '(' that is neither a local nor preceded
// by '.' counts as a reference to a top-level name.
func (p *parser) parseBody(locals map[string]bool) {
	if !p.eat(TokenPunct, "{") {
		p.listener.Error(p.cur().Offset, "expected function body")
		return
	}
	depth := 1
	prevDot := false
	prevLet := false
	for depth > 0 && p.cur().Kind != TokenEOF {
		t := p.next()
		switch {
		case t.Kind == TokenPunct && t.Text == "{":
			depth++
		case t.Kind == TokenPunct && t.Text == "}":
			depth--
		case t.Kind == TokenKeyword && t.Text == "let":
			prevLet = true
			continue
		case t.Kind == TokenIdent:
			if prevLet {
				locals[t.Text] = true
			} else if !prevDot && !locals[t.Text] && p.at(TokenPunct, "(") {
				p.ref(t.Text, t.Offset)
			}
		}
		prevDot = t.Kind == TokenPunct && t.Text == "."
		prevLet = false
	}
	if depth > 0 {
		p.listener.Error(p.cur().Offset, "unterminated function body")
	}
}

// parseExprUntilSemicolon consumes initializer tokens up to (not including)
// the terminating ';'. Identifiers followed by '(' are call references.
func (p *parser) parseExprUntilSemicolon() {
	prevDot := false
	for p.cur().Kind != TokenEOF && !p.at(TokenPunct, ";") {
		t := p.next()
		if t.Kind == TokenIdent && !prevDot && p.at(TokenPunct, "(") {
			p.ref(t.Text, t.Offset)
		}
		prevDot = t.Kind == TokenPunct && t.Text == "."
	}
}

func (p *parser) skipToSemicolon() {
	for p.cur().Kind != TokenEOF && !p.eat(TokenPunct, ";") {
		p.advance()
	}
}
