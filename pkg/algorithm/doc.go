// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package algorithm holds the training primitives driven by the live bridge:
// trajectory assembly from stored spans, generalized advantage estimation, the
// clipped PPO objective, and APO, a beam search over system prompts guided by
// LLM critiques.
//
// The numeric kernels are pure functions over slices so they can be fed from
// any store. APO talks to a chat model through llm.ChatClient and scores
// prompts with a PromptEvaluator.
package algorithm
