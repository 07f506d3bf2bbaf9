package graphdef

import (
	"sync"

	"github.com/jhump/protoreflect/v2/protobuilder"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// ServiceName is the full name of the executor gRPC service.
const ServiceName = "weft.v1.Executor"

var (
	buildOnce sync.Once

	computationFile protoreflect.FileDescriptor
	executorFile    protoreflect.FileDescriptor
)

func build() {
	buildOnce.Do(func() {
		var err error
		computationFile, err = buildComputationFile()
		if err != nil {
			panic("graphdef: building computation descriptors: " + err.Error())
		}
		executorFile, err = buildExecutorFile()
		if err != nil {
			panic("graphdef: building executor descriptors: " + err.Error())
		}
	})
}

// ComputationMessage returns the descriptor of weft.v1.Computation.
func ComputationMessage() protoreflect.MessageDescriptor {
	build()
	return computationFile.Messages().ByName("Computation")
}

// ValueMessage returns the descriptor of weft.v1.Value.
func ValueMessage() protoreflect.MessageDescriptor {
	build()
	return executorFile.Messages().ByName("Value")
}

// TypeSpecMessage returns the descriptor of weft.v1.TypeSpec.
func TypeSpecMessage() protoreflect.MessageDescriptor {
	build()
	return executorFile.Messages().ByName("TypeSpec")
}

// ExecutorService returns the descriptor of the weft.v1.Executor service.
func ExecutorService() protoreflect.ServiceDescriptor {
	build()
	return executorFile.Services().ByName("Executor")
}

// ExecutorMethod returns the descriptor of the named executor RPC.
func ExecutorMethod(name string) protoreflect.MethodDescriptor {
	return ExecutorService().Methods().ByName(protoreflect.Name(name))
}

func scalarField(name string, num int, kind protoreflect.Kind) *protobuilder.FieldBuilder {
	fb := protobuilder.NewField(protoreflect.Name(name), protobuilder.FieldTypeScalar(kind))
	fb.SetNumber(protoreflect.FieldNumber(num))
	return fb
}

func repScalarField(name string, num int, kind protoreflect.Kind) *protobuilder.FieldBuilder {
	fb := scalarField(name, num, kind)
	fb.SetRepeated()
	return fb
}

func msgField(name string, num int, mb *protobuilder.MessageBuilder) *protobuilder.FieldBuilder {
	fb := protobuilder.NewField(protoreflect.Name(name), protobuilder.FieldTypeMessage(mb))
	fb.SetNumber(protoreflect.FieldNumber(num))
	return fb
}

func repMsgField(name string, num int, mb *protobuilder.MessageBuilder) *protobuilder.FieldBuilder {
	fb := msgField(name, num, mb)
	fb.SetRepeated()
	return fb
}

func buildComputationFile() (protoreflect.FileDescriptor, error) {
	fb := protobuilder.NewFile("weft/v1/computation.proto")
	fb.SetPackageName("weft.v1")
	fb.SetSyntax(protoreflect.Proto3)

	attrMB := protobuilder.NewMessage("Attr")
	attrMB.AddField(scalarField("kind", 1, protoreflect.Int32Kind))
	attrMB.AddField(scalarField("i", 2, protoreflect.Int64Kind))
	attrMB.AddField(scalarField("f", 3, protoreflect.DoubleKind))
	attrMB.AddField(scalarField("s", 4, protoreflect.StringKind))
	attrMB.AddField(scalarField("b", 5, protoreflect.BoolKind))
	attrMB.AddField(repScalarField("ints", 6, protoreflect.Int64Kind))

	attrEntryMB := protobuilder.NewMessage("AttrEntry")
	attrEntryMB.AddField(scalarField("name", 1, protoreflect.StringKind))
	attrEntryMB.AddField(msgField("attr", 2, attrMB))

	nodeMB := protobuilder.NewMessage("Node")
	nodeMB.AddField(scalarField("name", 1, protoreflect.StringKind))
	nodeMB.AddField(scalarField("op", 2, protoreflect.StringKind))
	nodeMB.AddField(repScalarField("inputs", 3, protoreflect.StringKind))
	nodeMB.AddField(repScalarField("control_inputs", 4, protoreflect.StringKind))
	nodeMB.AddField(repMsgField("attrs", 5, attrEntryMB))

	tensorBindingMB := protobuilder.NewMessage("TensorBinding")
	tensorBindingMB.AddField(scalarField("node_name", 1, protoreflect.StringKind))

	sequenceBindingMB := protobuilder.NewMessage("SequenceBinding")
	sequenceBindingMB.AddField(scalarField("node_name", 1, protoreflect.StringKind))

	bindingMB := protobuilder.NewMessage("Binding")
	bindingElementMB := protobuilder.NewMessage("BindingElement")
	structBindingMB := protobuilder.NewMessage("StructBinding")

	bindingElementMB.AddField(scalarField("name", 1, protoreflect.StringKind))
	bindingElementMB.AddField(msgField("binding", 2, bindingMB))
	structBindingMB.AddField(repMsgField("elements", 1, bindingElementMB))
	bindingMB.AddField(msgField("tensor", 1, tensorBindingMB))
	bindingMB.AddField(msgField("struct", 2, structBindingMB))
	bindingMB.AddField(msgField("sequence", 3, sequenceBindingMB))

	graphMB := protobuilder.NewMessage("Graph")
	graphMB.AddField(repMsgField("nodes", 1, nodeMB))
	graphMB.AddField(msgField("parameter", 2, bindingMB))
	graphMB.AddField(msgField("result", 3, bindingMB))

	computationMB := protobuilder.NewMessage("Computation")
	lambdaMB := protobuilder.NewMessage("Lambda")
	lambdaMB.AddField(scalarField("parameter_name", 1, protoreflect.StringKind))
	lambdaMB.AddField(msgField("body", 2, computationMB))
	computationMB.AddField(msgField("graph", 1, graphMB))
	computationMB.AddField(msgField("lambda", 2, lambdaMB))

	for _, mb := range []*protobuilder.MessageBuilder{
		attrMB, attrEntryMB, nodeMB,
		tensorBindingMB, sequenceBindingMB, bindingElementMB, structBindingMB, bindingMB,
		graphMB, lambdaMB, computationMB,
	} {
		fb.AddMessage(mb)
	}
	return fb.Build()
}

func buildExecutorFile() (protoreflect.FileDescriptor, error) {
	fb := protobuilder.NewFile("weft/v1/executor.proto")
	fb.SetPackageName("weft.v1")
	fb.SetSyntax(protoreflect.Proto3)

	tensorSpecMB := protobuilder.NewMessage("TensorSpec")
	tensorSpecMB.AddField(scalarField("dtype", 1, protoreflect.StringKind))
	tensorSpecMB.AddField(repScalarField("shape", 2, protoreflect.Int64Kind))

	typeSpecMB := protobuilder.NewMessage("TypeSpec")
	structSpecMB := protobuilder.NewMessage("StructSpec")
	structSpecElementMB := protobuilder.NewMessage("StructSpecElement")
	functionSpecMB := protobuilder.NewMessage("FunctionSpec")

	structSpecElementMB.AddField(scalarField("name", 1, protoreflect.StringKind))
	structSpecElementMB.AddField(msgField("type", 2, typeSpecMB))
	structSpecMB.AddField(repMsgField("elements", 1, structSpecElementMB))
	functionSpecMB.AddField(msgField("parameter", 1, typeSpecMB))
	functionSpecMB.AddField(msgField("result", 2, typeSpecMB))
	typeSpecMB.AddField(msgField("tensor", 1, tensorSpecMB))
	typeSpecMB.AddField(msgField("struct", 2, structSpecMB))
	typeSpecMB.AddField(msgField("sequence_elem", 3, typeSpecMB))
	typeSpecMB.AddField(msgField("function", 4, functionSpecMB))

	tensorValueMB := protobuilder.NewMessage("TensorValue")
	tensorValueMB.AddField(scalarField("dtype", 1, protoreflect.StringKind))
	tensorValueMB.AddField(repScalarField("shape", 2, protoreflect.Int64Kind))
	tensorValueMB.AddField(repScalarField("int_values", 3, protoreflect.Int64Kind))
	tensorValueMB.AddField(repScalarField("float_values", 4, protoreflect.DoubleKind))
	tensorValueMB.AddField(repScalarField("bool_values", 5, protoreflect.BoolKind))
	tensorValueMB.AddField(repScalarField("string_values", 6, protoreflect.StringKind))

	valueMB := protobuilder.NewMessage("Value")
	valueElementMB := protobuilder.NewMessage("ValueElement")
	structValueMB := protobuilder.NewMessage("StructValue")
	sequenceValueMB := protobuilder.NewMessage("SequenceValue")

	valueElementMB.AddField(scalarField("name", 1, protoreflect.StringKind))
	valueElementMB.AddField(msgField("value", 2, valueMB))
	structValueMB.AddField(repMsgField("elements", 1, valueElementMB))
	sequenceValueMB.AddField(repMsgField("elements", 1, valueMB))
	valueMB.AddField(msgField("tensor", 1, tensorValueMB))
	valueMB.AddField(msgField("struct", 2, structValueMB))
	valueMB.AddField(msgField("sequence", 3, sequenceValueMB))
	valueMB.AddField(scalarField("computation", 4, protoreflect.BytesKind))
	valueMB.AddField(msgField("type", 5, typeSpecMB))

	createValueRequestMB := protobuilder.NewMessage("CreateValueRequest")
	createValueRequestMB.AddField(msgField("value", 1, valueMB))

	valueRefMB := protobuilder.NewMessage("ValueRef")
	valueRefMB.AddField(scalarField("id", 1, protoreflect.Uint64Kind))
	valueRefMB.AddField(msgField("type", 2, typeSpecMB))

	createCallRequestMB := protobuilder.NewMessage("CreateCallRequest")
	createCallRequestMB.AddField(scalarField("function_id", 1, protoreflect.Uint64Kind))
	createCallRequestMB.AddField(scalarField("argument_id", 2, protoreflect.Uint64Kind))
	createCallRequestMB.AddField(scalarField("has_argument", 3, protoreflect.BoolKind))

	structEntryMB := protobuilder.NewMessage("StructEntry")
	structEntryMB.AddField(scalarField("name", 1, protoreflect.StringKind))
	structEntryMB.AddField(scalarField("value_id", 2, protoreflect.Uint64Kind))

	createStructRequestMB := protobuilder.NewMessage("CreateStructRequest")
	createStructRequestMB.AddField(repMsgField("elements", 1, structEntryMB))

	createSelectionRequestMB := protobuilder.NewMessage("CreateSelectionRequest")
	createSelectionRequestMB.AddField(scalarField("source_id", 1, protoreflect.Uint64Kind))
	createSelectionRequestMB.AddField(scalarField("index", 2, protoreflect.Int32Kind))

	computeRequestMB := protobuilder.NewMessage("ComputeRequest")
	computeRequestMB.AddField(scalarField("value_id", 1, protoreflect.Uint64Kind))

	computeResponseMB := protobuilder.NewMessage("ComputeResponse")
	computeResponseMB.AddField(msgField("value", 1, valueMB))

	disposeRequestMB := protobuilder.NewMessage("DisposeRequest")
	disposeRequestMB.AddField(repScalarField("value_ids", 1, protoreflect.Uint64Kind))

	disposeResponseMB := protobuilder.NewMessage("DisposeResponse")

	for _, mb := range []*protobuilder.MessageBuilder{
		tensorSpecMB, structSpecElementMB, structSpecMB, functionSpecMB, typeSpecMB,
		tensorValueMB, valueElementMB, structValueMB, sequenceValueMB, valueMB,
		createValueRequestMB, valueRefMB, createCallRequestMB,
		structEntryMB, createStructRequestMB, createSelectionRequestMB,
		computeRequestMB, computeResponseMB, disposeRequestMB, disposeResponseMB,
	} {
		fb.AddMessage(mb)
	}

	sb := protobuilder.NewService("Executor")
	for _, m := range []struct {
		name     string
		in, out  *protobuilder.MessageBuilder
	}{
		{"CreateValue", createValueRequestMB, valueRefMB},
		{"CreateCall", createCallRequestMB, valueRefMB},
		{"CreateStruct", createStructRequestMB, valueRefMB},
		{"CreateSelection", createSelectionRequestMB, valueRefMB},
		{"Compute", computeRequestMB, computeResponseMB},
		{"Dispose", disposeRequestMB, disposeResponseMB},
	} {
		sb.AddMethod(protobuilder.NewMethod(
			protoreflect.Name(m.name),
			protobuilder.RpcTypeMessage(m.in, false),
			protobuilder.RpcTypeMessage(m.out, false),
		))
	}
	fb.AddService(sb)

	return fb.Build()
}
