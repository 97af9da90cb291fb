// Copyright (C) 1994-2017 Lua.org, PUC-Rio.
// Copyright 2026 The lunac Authors
// SPDX-License-Identifier: MIT

/*
Package luacode turns syntax trees into Lua 5.3 virtual machine code.
See [Generate] for the entry point.

# Provenance

The instruction encoding, the constant representation,
and the precompiled chunk format are hand-written conversions
of Lua 5.3.6 to Go, specifically borrowing from:

  - lopcodes.h
  - lobject.h (for Proto)
  - ldump.c
  - lundump.c

The code generator itself walks a [lunac.dev/pkg/internal/luaast] tree
instead of parsing on the fly,
so prototypes can be produced from any front end
that speaks the same syntax tree.

# Lua License

Copyright (C) 1994-2017 Lua.org, PUC-Rio.

Permission is hereby granted, free of charge, to any person obtaining
a copy of this software and associated documentation files (the
"Software"), to deal in the Software without restriction, including
without limitation the rights to use, copy, modify, merge, publish,
distribute, sublicense, and/or sell copies of the Software, and to
permit persons to whom the Software is furnished to do so, subject to
the following conditions:

The above copyright notice and this permission notice shall be
included in all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY
CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT,
TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
*/
package luacode
