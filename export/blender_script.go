package export

// blenderPipeScript is the generation script run by headless Blender. It
// reads the asset data file (last-but-one argument), builds one cylinder per
// pipe segment with a coloured material, and exports the scene to the FBX
// path given as the last argument.
const blenderPipeScript = `
import bpy
import json
import math
import sys

bpy.ops.wm.read_factory_settings(use_empty=True)

data_file = sys.argv[-2]
output_file = sys.argv[-1]

with open(data_file, "r") as f:
    data = json.load(f)

assets = data.get("assets", [])
options = data.get("options", {})
sections = int(options.get("sections", 16))


def hex_to_rgb(hex_color):
    hex_color = hex_color.lstrip("#")
    return tuple(int(hex_color[i:i + 2], 16) / 255.0 for i in (0, 2, 4))


def segment(start, end, radius, name, color):
    mid = [(s + e) / 2 for s, e in zip(start, end)]
    direction = [e - s for s, e in zip(start, end)]
    length = math.sqrt(sum(d ** 2 for d in direction))
    if length < 0.001:
        return None

    bpy.ops.mesh.primitive_cylinder_add(
        radius=radius, depth=length, location=mid, vertices=sections)
    obj = bpy.context.active_object
    obj.name = name

    dx, dy, dz = [d / length for d in direction]
    rot_x = math.atan2(math.sqrt(dx ** 2 + dy ** 2), dz)
    rot_z = math.atan2(dy, dx) if abs(dx) > 0.001 or abs(dy) > 0.001 else 0
    obj.rotation_euler = (rot_x, 0, rot_z + math.pi / 2)

    mat = bpy.data.materials.new(name=name + "_material")
    mat.use_nodes = True
    bsdf = mat.node_tree.nodes.get("Principled BSDF")
    if bsdf:
        rgb = hex_to_rgb(color)
        bsdf.inputs["Base Color"].default_value = (*rgb, 1.0)
        bsdf.inputs["Metallic"].default_value = 0.3
        bsdf.inputs["Roughness"].default_value = 0.6
    obj.data.materials.append(mat)
    return obj


def lift(point, depth):
    if len(point) == 2:
        return [point[0], point[1], -depth]
    return [point[0], point[1], point[2]]


created = 0
for index, a in enumerate(assets):
    coords = a.get("coordinates", [])
    if len(coords) < 2:
        continue
    color = a.get("color", "#808080")
    radius = a.get("diameter", 0.15) / 2
    depth_start = a.get("depth_start", 1.5)
    depth_end = a.get("depth_end", 1.5)
    label = a.get("label", "pipe_%d" % index)

    parts = []
    for i in range(len(coords) - 1):
        start = lift(coords[i], depth_start)
        end = lift(coords[i + 1], depth_end)
        obj = segment(start, end, radius, "%s_segment_%d" % (label, i), color)
        if obj:
            parts.append(obj)
            created += 1

    if parts:
        bpy.ops.object.empty_add(type="PLAIN_AXES", location=(0, 0, 0))
        parent = bpy.context.active_object
        parent.name = label
        for obj in parts:
            obj.parent = parent

print("created %d pipe segments from %d assets" % (created, len(assets)))

bpy.ops.object.select_all(action="SELECT")
bpy.ops.export_scene.fbx(
    filepath=output_file,
    use_selection=False,
    global_scale=1.0,
    apply_unit_scale=True,
    apply_scale_options="FBX_SCALE_ALL",
    use_mesh_modifiers=True,
    mesh_smooth_type="FACE",
    path_mode="AUTO",
    embed_textures=False,
    axis_forward="-Z",
    axis_up="Y",
)

print("exported fbx to %s" % output_file)
`
