package main

const indexHTML = `
<!DOCTYPE html>
<html>
  <head>
    <meta http-equiv="Content-Type" content="text/html; charset=utf-8">
    <style type="text/css">
      canvas { border: 1px solid black; }
    </style>
    <script src="https://unpkg.com/zdog@1/dist/zdog.dist.js"></script>
  </head>
  <body>
    <canvas class="gcode-view" width="600" height="600"></canvas>
    <p>Drag to rotate, scroll to zoom. Rapid moves are red; feed moves are green.</p>
    <script type="text/javascript">
document.title = "%s"

const config = {
%s
}

const cmds = [
%s
]
    </script>
    <script type="text/javascript">
let displaySize = 600;


let gcodeView = document.querySelector(".gcode-view")

let illo = new Zdog.Illustration({
  element: gcodeView,
  scale: {x: 1.0, y: -1.0, z: 1.0},
  rotate: {x: 1.1, y: 0, z: -0.3},
});

gcodeView.onwheel = function(event) {
  illo.zoom *= (event.deltaY < 0 ? 1.1 : 0.9)
  animate()
}

let dragStartRX, dragStartRZ;
let isDragging = false;

new Zdog.Dragger({
  startElement: gcodeView,
  onDragStart: function() {
    dragStartRX = illo.rotate.x;
    dragStartRZ = illo.rotate.z;
    isDragging = true;
    animate();
  },
  onDragMove: function( pointer, moveX, moveY ) {
    illo.rotate.x = dragStartRX - ( moveY / displaySize * Zdog.TAU );
    illo.rotate.z = dragStartRZ - ( moveX / displaySize * Zdog.TAU );
  },
  onDragEnd: function () {
    isDragging = false;
  },
});

// Workspace sized to the toolpath
let size = Math.max(config.maxPos.x, config.maxPos.y, 1)
let depth = Math.max(config.maxPos.z, 1)
illo.zoom = displaySize / (size * 3)

let workspace = new Zdog.Anchor({
  addTo: illo,
})

new Zdog.Shape({
  addTo: workspace,
  stroke: 0.01 * size,
  color: 'grey',
  path: [
    {x: -size, y: -size, z: 0},
    {x: size, y: -size, z: 0},
    {x: size, y: size, z: 0},
    {x: -size, y: size, z: 0},
    {x: -size, y: -size, z: 0},

    {move: {x: -size, y: -size, z: -depth}},
    {x: size, y: -size, z: -depth},
    {x: size, y: size, z: -depth},
    {x: -size, y: size, z: -depth},
    {x: -size, y: -size, z: -depth},
  ],
})

// Axes
new Zdog.Shape({
  addTo: workspace,
  stroke: 0.02 * size,
  color: 'red',
  path: [
    {x: 0, y: 0, z: 0},
    {x: size / 4, y: 0, z: 0},
  ],
})

new Zdog.Shape({
  addTo: workspace,
  stroke: 0.02 * size,
  color: 'green',
  path: [
    {x: 0, y: 0, z: 0},
    {x: 0, y: size / 4, z: 0},
  ],
})

new Zdog.Shape({
  addTo: workspace,
  stroke: 0.02 * size,
  color: 'blue',
  path: [
    {x: 0, y: 0, z: 0},
    {x: 0, y: 0, z: size / 4},
  ],
})

let curPt = config.homePos

function rapidTo(pt) {
  new Zdog.Shape({
    addTo: workspace,
    stroke: 0.004 * size,
    color: 'red',
    path: [curPt, pt],
  })
  curPt = pt
}

function linearTo(pt) {
  new Zdog.Shape({
    addTo: workspace,
    stroke: 0.004 * size,
    color: 'green',
    path: [curPt, pt],
  })
  curPt = pt
}

for (cmd of cmds) {
  if (cmd.rapidTo !== undefined) {
    rapidTo(cmd.rapidTo)
  } else if (cmd.linearTo !== undefined) {
    linearTo(cmd.linearTo)
  }
}

function animate() {
  illo.updateRenderGraph()
  if (isDragging) {
    requestAnimationFrame(animate)
  }
}
animate();
    </script>
 </body>
</html>
`
