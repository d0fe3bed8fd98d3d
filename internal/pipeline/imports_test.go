package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightgraph/codegraph/internal/lang"
	"github.com/brightgraph/codegraph/internal/parser"
)

func parseJSImportsForTest(t *testing.T, source, relPath string) map[string]string {
	t.Helper()
	tree, err := parser.Parse(lang.JavaScript, []byte(source))
	require.NoError(t, err)
	defer tree.Close()

	return parseImports(tree.RootNode(), []byte(source), lang.JavaScript, "myproj", relPath)
}

func TestJSImportsES6Default(t *testing.T) {
	imports := parseJSImportsForTest(t, `
import React from 'react';
import Button from './src/components/Button';
`, "app.js")

	assert.Equal(t, "react", imports["React"])
	assert.Equal(t, "myproj.src.components.Button", imports["Button"])
}

func TestJSImportsES6Named(t *testing.T) {
	imports := parseJSImportsForTest(t, `
import { helper } from './src/utils/helpers';
import { helper as utilHelper, API_URL as apiEndpoint } from './src/utils/helpers';
`, "app.js")

	assert.Equal(t, "myproj.src.utils.helpers.helper", imports["helper"])
	assert.Equal(t, "myproj.src.utils.helpers.helper", imports["utilHelper"])
	assert.Equal(t, "myproj.src.utils.helpers.API_URL", imports["apiEndpoint"])
}

func TestJSImportsES6Namespace(t *testing.T) {
	imports := parseJSImportsForTest(t, `
import * as utils from './src/utils/helpers';
`, "app.js")

	assert.Equal(t, "myproj.src.utils.helpers", imports["utils"])
}

func TestJSImportsMixedDefaultAndNamed(t *testing.T) {
	imports := parseJSImportsForTest(t, `
import React, { Component, useState as state } from 'react';
`, "app.js")

	assert.Equal(t, "react", imports["React"])
	assert.Equal(t, "react.Component", imports["Component"])
	assert.Equal(t, "react.useState", imports["state"])
}

func TestJSImportsSideEffectOnlyNoBinding(t *testing.T) {
	imports := parseJSImportsForTest(t, `import './side-effects-only';`, "app.js")
	assert.Empty(t, imports)
}

func TestJSImportsCommonJSRequire(t *testing.T) {
	imports := parseJSImportsForTest(t, `
const fs = require('fs');
const config = require('./lib/config');
`, "app.js")

	assert.Equal(t, "fs", imports["fs"])
	assert.Equal(t, "myproj.lib.config", imports["config"])
}

func TestJSImportsCommonJSDestructuring(t *testing.T) {
	imports := parseJSImportsForTest(t, `
const { helper, validator, formatter } = require('./src/utils/helpers');
`, "app.js")

	assert.Equal(t, "myproj.src.utils.helpers.helper", imports["helper"])
	assert.Equal(t, "myproj.src.utils.helpers.validator", imports["validator"])
	assert.Equal(t, "myproj.src.utils.helpers.formatter", imports["formatter"])
}

func TestJSImportsCommonJSAliasedDestructuring(t *testing.T) {
	imports := parseJSImportsForTest(t, `
const { helper: utilHelper, API_URL: apiEndpoint } = require('./src/utils/helpers');
`, "app.js")

	assert.Equal(t, "myproj.src.utils.helpers.helper", imports["utilHelper"])
	assert.Equal(t, "myproj.src.utils.helpers.API_URL", imports["apiEndpoint"])
}

func TestJSImportsCommonJSDynamicArgumentUnresolvable(t *testing.T) {
	imports := parseJSImportsForTest(t, `const dynamicModule = require(getModuleName());`, "app.js")
	assert.Empty(t, imports)
}

func TestJSImportsAliasedReExportMapsToSourceName(t *testing.T) {
	// Regression: "export { add as mathAdd } from './math_utils'" must map
	// mathAdd -> math_utils.add, never mathAdd -> math_utils.mathAdd.
	imports := parseJSImportsForTest(t, `
export { add as mathAdd, subtract as mathSub } from './math_utils';
export { capitalize } from './string_utils';
`, "utils_index.js")

	assert.Equal(t, "myproj.math_utils.add", imports["mathAdd"])
	assert.Equal(t, "myproj.math_utils.subtract", imports["mathSub"])
	assert.Equal(t, "myproj.string_utils.capitalize", imports["capitalize"])
}

func TestJSImportsWildcardReExport(t *testing.T) {
	imports := parseJSImportsForTest(t, `export * from './src/utils/math';`, "index.js")

	require.Len(t, imports, 1)
	for k, v := range imports {
		assert.Contains(t, k, "wildcard")
		assert.Equal(t, "myproj.src.utils.math", v)
	}
}

func TestJSImportsRelativePathResolution(t *testing.T) {
	imports := parseJSImportsForTest(t, `
import Button from './Button';
import utils from '../../utils/helpers';
import config from '../../lib/config';
`, "src/components/forms/Input.js")

	assert.Equal(t, "myproj.src.components.forms.Button", imports["Button"])
	assert.Equal(t, "myproj.src.utils.helpers", imports["utils"])
	assert.Equal(t, "myproj.src.lib.config", imports["config"])
}

func TestJSImportsScopedPackage(t *testing.T) {
	imports := parseJSImportsForTest(t, `import babelCore from '@babel/core';`, "app.js")
	assert.Equal(t, "@babel.core", imports["babelCore"])
}
