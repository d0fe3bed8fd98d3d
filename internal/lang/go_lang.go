package lang

func init() {
	Register(&LanguageSpec{
		Language:          Go,
		FileExtensions:    []string{".go"},
		FunctionNodeTypes: []string{"function_declaration", "method_declaration"},
		ClassNodeTypes:    []string{"type_spec", "type_alias"},
		FieldNodeTypes:    []string{"field_declaration"},
		ModuleNodeTypes:   []string{"source_file"},
		CallNodeTypes:     []string{"call_expression"},
		ImportNodeTypes:   []string{"import_declaration"},
		ImportFromTypes:   []string{"import_declaration"},

		// Go has no `new X()` expression for struct literals; `composite_literal`
		// plays that role and is recognized directly in type inference.
		NewExpressionTypes: []string{"composite_literal"},
		ConstructorNames:   []string{"New"},
	})
}
