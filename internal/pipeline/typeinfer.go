package pipeline

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/brightgraph/codegraph/internal/fqn"
	"github.com/brightgraph/codegraph/internal/lang"
	"github.com/brightgraph/codegraph/internal/parser"
)

// TypeMap tracks variable names to their inferred class/type qualified names.
// Key: variable name, Value: class/type QN in the registry.
type TypeMap map[string]string

// inferTypes walks the AST looking for variable assignments where the value
// is a constructor call (class instantiation) and builds a mapping from
// variable name to the class QN. This enables resolving method calls like
// `obj.method()` to `ClassName.method`.
func (p *Pipeline) inferTypes(
	root *tree_sitter.Node,
	source []byte,
	language lang.Language,
	moduleQN string,
	importMap map[string]string,
) TypeMap {
	types := make(TypeMap)
	registry := p.registry

	switch language {
	case lang.Python:
		inferPythonTypes(root, source, registry, moduleQN, importMap, types)
	case lang.Go:
		inferGoTypes(root, source, registry, moduleQN, importMap, types)
	case lang.JavaScript, lang.TypeScript, lang.TSX:
		p.inferJSTypes(root, source, moduleQN, importMap, types)
	}

	return types
}

// inferPythonTypes handles Python patterns like:
//
//	x = ClassName(args)
//	x = module.ClassName(args)
func inferPythonTypes(
	root *tree_sitter.Node,
	source []byte,
	registry *FunctionRegistry,
	moduleQN string,
	importMap map[string]string,
	types TypeMap,
) {
	parser.Walk(root, func(node *tree_sitter.Node) bool {
		// Look for assignment: expression_statement -> assignment
		if node.Kind() != "assignment" {
			return true
		}

		leftNode := node.ChildByFieldName("left")
		rightNode := node.ChildByFieldName("right")
		if leftNode == nil || rightNode == nil {
			return false
		}

		// Left side must be a simple identifier
		if leftNode.Kind() != "identifier" {
			return false
		}
		varName := parser.NodeText(leftNode, source)

		// Right side must be a call expression
		if rightNode.Kind() != "call" {
			return false
		}

		calleeName := extractCalleeForTypeInfer(rightNode, source)
		if calleeName == "" {
			return false
		}

		// Resolve the callee to see if it's a class
		classQN := resolveAsClass(calleeName, registry, moduleQN, importMap)
		if classQN != "" {
			types[varName] = classQN
		}

		return false
	})
}

// inferGoTypes handles Go patterns like:
//
//	var x = StructName{...}  (composite_literal)
//	x := StructName{...}     (short_var_declaration)
//	var x StructName          (var_declaration with type)
func inferGoTypes(
	root *tree_sitter.Node,
	source []byte,
	registry *FunctionRegistry,
	moduleQN string,
	importMap map[string]string,
	types TypeMap,
) {
	parser.Walk(root, func(node *tree_sitter.Node) bool {
		switch node.Kind() {
		case "short_var_declaration":
			inferGoShortVar(node, source, registry, moduleQN, importMap, types)
			return false
		case "var_declaration":
			inferGoVarDecl(node, source, registry, moduleQN, importMap, types)
			return false
		}
		return true
	})
}

// inferGoShortVar handles: x := StructName{} or x := pkg.StructName{}
func inferGoShortVar(
	node *tree_sitter.Node,
	source []byte,
	registry *FunctionRegistry,
	moduleQN string,
	importMap map[string]string,
	types TypeMap,
) {
	leftNode := node.ChildByFieldName("left")
	rightNode := node.ChildByFieldName("right")
	if leftNode == nil || rightNode == nil {
		return
	}

	varName := extractFirstIdentifier(leftNode, source)
	if varName == "" {
		return
	}

	// Check if right side is a composite literal (struct initialization)
	typeName := extractCompositeLiteralType(rightNode, source)
	if typeName == "" {
		// Retry on the first expression of an expression_list; only a
		// composite literal is recognized, a constructor call such as
		// NewFoo() is not inferred.
		if rightNode.Kind() == "expression_list" && rightNode.NamedChildCount() > 0 {
			firstExpr := rightNode.NamedChild(0)
			if firstExpr != nil {
				typeName = extractCompositeLiteralType(firstExpr, source)
			}
		}
		if typeName == "" {
			return
		}
	}

	classQN := resolveAsClass(typeName, registry, moduleQN, importMap)
	if classQN != "" {
		types[varName] = classQN
	}
}

// inferGoVarDecl handles: var x StructName or var x = StructName{}
func inferGoVarDecl(
	node *tree_sitter.Node,
	source []byte,
	registry *FunctionRegistry,
	moduleQN string,
	importMap map[string]string,
	types TypeMap,
) {
	// Walk var_spec children
	parser.Walk(node, func(child *tree_sitter.Node) bool {
		if child.Kind() != "var_spec" {
			return true
		}

		nameNode := child.ChildByFieldName("name")
		typeNode := child.ChildByFieldName("type")
		if nameNode == nil {
			return false
		}

		varName := parser.NodeText(nameNode, source)

		// If there's an explicit type, use it
		if typeNode != nil {
			typeName := parser.NodeText(typeNode, source)
			// Strip pointer prefix
			typeName = strings.TrimPrefix(typeName, "*")
			classQN := resolveAsClass(typeName, registry, moduleQN, importMap)
			if classQN != "" {
				types[varName] = classQN
			}
		} else if valueNode := child.ChildByFieldName("value"); valueNode != nil {
			if typeName := extractCompositeLiteralType(valueNode, source); typeName != "" {
				if classQN := resolveAsClass(typeName, registry, moduleQN, importMap); classQN != "" {
					types[varName] = classQN
				}
			}
		}

		return false
	})
}

// resolveAsClass checks if a name refers to a Class/Type node in the registry.
func resolveAsClass(name string, registry *FunctionRegistry, moduleQN string, importMap map[string]string) string {
	qn := registry.Resolve(name, moduleQN, importMap)
	if qn == "" {
		return ""
	}

	kind, exists := registry.trie.Lookup(qn)
	if !exists {
		return ""
	}

	// Only return if it's a class-like node
	switch kind {
	case fqn.KindClass, fqn.KindType, fqn.KindInterface, fqn.KindEnum:
		return qn
	}
	return ""
}

// extractCalleeForTypeInfer extracts the function/class name from a call node.
func extractCalleeForTypeInfer(callNode *tree_sitter.Node, source []byte) string {
	funcNode := callNode.ChildByFieldName("function")
	if funcNode == nil {
		return ""
	}

	switch funcNode.Kind() {
	case "identifier":
		return parser.NodeText(funcNode, source)
	case "attribute", "selector_expression":
		return parser.NodeText(funcNode, source)
	}
	return ""
}

// extractFirstIdentifier gets the first identifier from an expression list node.
func extractFirstIdentifier(node *tree_sitter.Node, source []byte) string {
	if node.Kind() == "identifier" {
		return parser.NodeText(node, source)
	}
	if node.Kind() == "expression_list" && node.NamedChildCount() > 0 {
		first := node.NamedChild(0)
		if first != nil && first.Kind() == "identifier" {
			return parser.NodeText(first, source)
		}
	}
	return ""
}

// extractCompositeLiteralType extracts the type name from a composite literal.
// E.g., "StructName{field: val}" -> "StructName"
func extractCompositeLiteralType(node *tree_sitter.Node, source []byte) string {
	if node.Kind() == "expression_list" && node.NamedChildCount() > 0 {
		node = node.NamedChild(0)
		if node == nil {
			return ""
		}
	}
	if node.Kind() != "composite_literal" {
		return ""
	}
	typeNode := node.ChildByFieldName("type")
	if typeNode == nil {
		return ""
	}
	typeName := parser.NodeText(typeNode, source)
	// Handle pointer types
	typeName = strings.TrimPrefix(typeName, "&")
	typeName = strings.TrimPrefix(typeName, "*")
	return typeName
}

// findEnclosingClassQN walks up the AST from a call node to find the enclosing
// class_definition (Python) and returns the class's qualified name.
// Returns "" if the call is not inside a class.
func findEnclosingClassQN(node *tree_sitter.Node, source []byte, project, relPath string) string {
	current := node.Parent()
	for current != nil {
		if current.Kind() == "class_definition" {
			nameNode := current.ChildByFieldName("name")
			if nameNode != nil {
				className := parser.NodeText(nameNode, source)
				return fqn.Compute(project, relPath, className)
			}
		}
		current = current.Parent()
	}
	return ""
}

// parseGoReceiverType extracts the receiver type name from a Go method's
// function_declaration node. Returns the variable name and type name.
// E.g., "(s *Server)" -> ("s", "Server")
func parseGoReceiverType(funcNode *tree_sitter.Node, source []byte) (varName, typeName string) {
	recvNode := funcNode.ChildByFieldName("receiver")
	if recvNode == nil {
		return "", ""
	}
	recvText := parser.NodeText(recvNode, source)
	// Strip parens: "(s *Server)" -> "s *Server"
	recvText = strings.TrimPrefix(recvText, "(")
	recvText = strings.TrimSuffix(recvText, ")")
	recvText = strings.TrimSpace(recvText)

	parts := strings.Fields(recvText)
	if len(parts) < 2 {
		return "", ""
	}
	varName = parts[0]
	typeName = parts[1]
	typeName = strings.TrimPrefix(typeName, "*")
	return varName, typeName
}

// findEnclosingFuncNode walks up the AST to find the nearest function_declaration
// or method_declaration ancestor.
func findEnclosingFuncNode(node *tree_sitter.Node, funcTypes map[string]bool) *tree_sitter.Node {
	current := node.Parent()
	for current != nil {
		if funcTypes[current.Kind()] {
			return current
		}
		current = current.Parent()
	}
	return nil
}

// inferJSTypes handles JavaScript/TypeScript patterns like:
//
//	const animal = new Animal(...)
//	const storage = Storage.getInstance()
//	const rect = Rectangle()
//
// Uses a stack-based walk (not parser.Walk's callback recursion) over every
// variable_declarator in scope, mirroring the teacher's locals-query gap:
// a tree-sitter locals query misses method-scoped variables that a full
// subtree walk catches.
func (p *Pipeline) inferJSTypes(
	root *tree_sitter.Node, source []byte, moduleQN string, importMap map[string]string, types TypeMap,
) {
	stack := []*tree_sitter.Node{root}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if current.Kind() == "variable_declarator" {
			nameNode := current.ChildByFieldName("name")
			valueNode := current.ChildByFieldName("value")
			if nameNode != nil && valueNode != nil && nameNode.Kind() == "identifier" {
				varName := parser.NodeText(nameNode, source)
				if varType := p.inferJSVariableTypeFromValue(valueNode, source, moduleQN, importMap, 0); varType != "" {
					types[varName] = varType
				}
			}
		}

		for i := uint(0); i < current.ChildCount(); i++ {
			if child := current.Child(i); child != nil {
				stack = append(stack, child)
			}
		}
	}
}

// inferJSVariableTypeFromValue infers a JS/TS variable's type from its
// initializer expression. depth counts the chained-call hops already
// followed to reach valueNode (e.g. the 2 in a.b().c() — a.b() is hop 1,
// .c() is hop 2); it is bounded by p.CallChainDepth (spec.md §6) so a long
// fluent chain can't recurse without limit.
func (p *Pipeline) inferJSVariableTypeFromValue(
	valueNode *tree_sitter.Node, source []byte, moduleQN string, importMap map[string]string, depth int,
) string {
	switch valueNode.Kind() {
	case "new_expression":
		className := extractJSConstructorName(valueNode, source)
		if className == "" {
			return ""
		}
		if classQN := p.resolveJSClassName(className, moduleQN, importMap); classQN != "" {
			return classQN
		}
		return className

	case "call_expression":
		funcNode := valueNode.ChildByFieldName("function")
		if funcNode == nil {
			return ""
		}
		switch funcNode.Kind() {
		case "member_expression":
			return p.inferJSChainedMethodCall(funcNode, source, moduleQN, importMap, depth)
		case "identifier":
			// Factory function: assume it returns an instance of its own name.
			return parser.NodeText(funcNode, source)
		}
	}
	return ""
}

// inferJSChainedMethodCall infers the return type of a `<object>.<method>()`
// call where object may itself be a nested call/new expression, e.g.
// `repo.findUser(id).profile().avatar()`. Each hop's object is resolved to a
// type first (recursively, up to p.CallChainDepth), so the method lookup on
// the outer hop runs against the inner hop's inferred return type rather
// than failing on raw, unresolvable call-expression source text.
func (p *Pipeline) inferJSChainedMethodCall(
	memberExpr *tree_sitter.Node, source []byte, moduleQN string, importMap map[string]string, depth int,
) string {
	objectNode := memberExpr.ChildByFieldName("object")
	propertyNode := memberExpr.ChildByFieldName("property")
	if objectNode == nil || propertyNode == nil {
		return ""
	}
	methodName := parser.NodeText(propertyNode, source)
	if methodName == "" {
		return ""
	}

	switch objectNode.Kind() {
	case "identifier":
		objectName := parser.NodeText(objectNode, source)
		if objectName == "" {
			return ""
		}
		return p.inferJSMethodReturnType(objectName+"."+methodName, moduleQN, importMap)

	case "call_expression", "new_expression":
		if depth >= p.CallChainDepth {
			return ""
		}
		receiverType := p.inferJSVariableTypeFromValue(objectNode, source, moduleQN, importMap, depth+1)
		if receiverType == "" {
			return ""
		}
		return p.inferJSMethodReturnTypeForClassQN(receiverType, methodName)
	}
	return ""
}

// inferJSMethodReturnType infers the return type of a "Class.method()" call
// by resolving Class, locating method's AST node across the whole project
// (the method may live in a different file than the call site), and
// analyzing its return statements. E.g. Storage.getInstance() -> Storage.
func (p *Pipeline) inferJSMethodReturnType(methodCall, moduleQN string, importMap map[string]string) string {
	parts := strings.SplitN(methodCall, ".", 2)
	if len(parts) != 2 {
		return ""
	}
	className, methodName := parts[0], parts[1]

	classQN := p.resolveJSClassName(className, moduleQN, importMap)
	if classQN == "" {
		return ""
	}
	return p.inferJSMethodReturnTypeForClassQN(classQN, methodName)
}

// inferJSMethodReturnTypeForClassQN is inferJSMethodReturnType's second half,
// split out so a chained call (SPEC_FULL.md's call_chain_depth) can resolve
// an intermediate hop's return type — already a full class QN, not a bare
// name needing import/local resolution — directly into the next hop's
// method lookup.
func (p *Pipeline) inferJSMethodReturnTypeForClassQN(classQN, methodName string) string {
	className := classQN
	if idx := strings.LastIndex(classQN, "."); idx >= 0 {
		className = classQN[idx+1:]
	}

	methodQN := classQN + "." + methodName
	methodNode, methodSource := p.findJSMethodASTNode(classQN, className, methodName)
	if methodNode == nil {
		return ""
	}

	return analyzeJSReturnStatements(methodNode, methodSource, methodQN)
}

// resolveJSClassName resolves a JS/TS class name to its qualified name,
// preferring the import map, then the current module, matching the
// import-then-local precedence the rest of this file's resolvers use.
func (p *Pipeline) resolveJSClassName(className, moduleQN string, importMap map[string]string) string {
	if importMap != nil {
		if importedQN, ok := importMap[className]; ok {
			// A JS import of a barrel module may point at the module QN, not
			// the class itself — the class QN repeats the class name
			// (js_test.storage.Storage -> js_test.storage.Storage.Storage).
			fullClassQN := importedQN + "." + className
			if kind, exists := p.registry.trie.Lookup(fullClassQN); exists && kind == fqn.KindClass {
				return fullClassQN
			}
			return importedQN
		}
	}

	localClassQN := moduleQN + "." + className
	if kind, exists := p.registry.trie.Lookup(localClassQN); exists && kind == fqn.KindClass {
		return localClassQN
	}

	return ""
}

// findJSMethodASTNode locates a method's AST node anywhere in the indexed
// project by looking up its owning class's file path in the store and
// re-walking that file's cached AST for the named method.
func (p *Pipeline) findJSMethodASTNode(classQN, className, methodName string) (*tree_sitter.Node, []byte) {
	classNode, err := p.Store.FindNodeByQN(p.ProjectName, classQN)
	if err != nil || classNode == nil {
		return nil, nil
	}
	cached, ok := p.astCache.Get(classNode.FilePath)
	if !ok {
		return nil, nil
	}
	method := findJSMethodInAST(cached.Tree.RootNode(), className, methodName, cached.Source)
	return method, cached.Source
}

// findJSMethodInAST stack-walks a file's AST looking for a class_declaration
// named className, then scans its class body for a method_definition named
// methodName.
func findJSMethodInAST(root *tree_sitter.Node, className, methodName string, source []byte) *tree_sitter.Node {
	stack := []*tree_sitter.Node{root}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if current.Kind() == "class_declaration" {
			nameNode := current.ChildByFieldName("name")
			if nameNode != nil && parser.NodeText(nameNode, source) == className {
				if body := current.ChildByFieldName("body"); body != nil {
					return findJSMethodInClassBody(body, methodName, source)
				}
			}
		}

		for i := uint(0); i < current.ChildCount(); i++ {
			if child := current.Child(i); child != nil {
				stack = append(stack, child)
			}
		}
	}
	return nil
}

// findJSMethodInClassBody scans the direct children of a class body for a
// method_definition with the given name.
func findJSMethodInClassBody(classBody *tree_sitter.Node, methodName string, source []byte) *tree_sitter.Node {
	for i := uint(0); i < classBody.NamedChildCount(); i++ {
		child := classBody.NamedChild(i)
		if child == nil || child.Kind() != "method_definition" {
			continue
		}
		if nameNode := child.ChildByFieldName("name"); nameNode != nil {
			if parser.NodeText(nameNode, source) == methodName {
				return child
			}
		}
	}
	return nil
}

// analyzeJSReturnStatements scans a method body's return statements for the
// first one whose expression's type can be inferred, and returns that type.
func analyzeJSReturnStatements(methodNode *tree_sitter.Node, source []byte, methodQN string) string {
	var returns []*tree_sitter.Node
	findJSReturnStatements(methodNode, &returns)

	for _, ret := range returns {
		for i := uint(0); i < ret.NamedChildCount(); i++ {
			expr := ret.NamedChild(i)
			if expr == nil {
				continue
			}
			if t := analyzeJSReturnExpression(expr, source, methodQN); t != "" {
				return t
			}
		}
	}
	return ""
}

// findJSReturnStatements stack-walks node collecting every return_statement,
// avoiding Go-stack recursion depth for deeply nested method bodies.
func findJSReturnStatements(node *tree_sitter.Node, out *[]*tree_sitter.Node) {
	stack := []*tree_sitter.Node{node}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if current.Kind() == "return_statement" {
			*out = append(*out, current)
		}

		for i := uint(0); i < current.ChildCount(); i++ {
			if child := current.Child(i); child != nil {
				stack = append(stack, child)
			}
		}
	}
}

// analyzeJSReturnExpression infers a type from a single returned expression.
// Handles: `return new Storage()`, `return this`, `return Storage.instance`,
// `return this.instance` — in every "this"-like case the inferred type is
// the enclosing class, recovered by dropping the last segment of methodQN.
func analyzeJSReturnExpression(expr *tree_sitter.Node, source []byte, methodQN string) string {
	enclosingClassQN := func() string {
		if idx := strings.LastIndex(methodQN, "."); idx > 0 {
			return methodQN[:idx]
		}
		return ""
	}

	switch expr.Kind() {
	case "new_expression":
		if className := extractJSConstructorName(expr, source); className != "" {
			if classQN := enclosingClassQN(); classQN != "" && strings.HasSuffix(classQN, "."+className) {
				return classQN
			}
			return className
		}

	case "this":
		return enclosingClassQN()

	case "member_expression":
		objectNode := expr.ChildByFieldName("object")
		if objectNode == nil {
			return ""
		}
		if objectNode.Kind() == "this" {
			return enclosingClassQN()
		}
		if objectNode.Kind() == "identifier" {
			objectName := parser.NodeText(objectNode, source)
			parts := strings.Split(methodQN, ".")
			if len(parts) >= 2 && objectName == parts[len(parts)-2] {
				return enclosingClassQN()
			}
		}
	}
	return ""
}

// extractJSConstructorName extracts the class name from a `new X(...)`
// expression's constructor field.
func extractJSConstructorName(newExpr *tree_sitter.Node, source []byte) string {
	ctor := newExpr.ChildByFieldName("constructor")
	if ctor == nil || ctor.Kind() != "identifier" {
		return ""
	}
	return parser.NodeText(ctor, source)
}

